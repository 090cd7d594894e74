package scheduler

// State is the phase the scheduler is currently in.
type State string

const (
	StateIdle              State = "idle"
	StateCheckingPositions State = "checking-positions"
	StateCollectingSignals State = "collecting-signals"
	StateOpeningPositions  State = "opening-positions"
	StateWaiting           State = "waiting"
)

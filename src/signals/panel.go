package signals

import (
	"context"
	"fmt"

	"consensusbot/src/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source produces one vote from one named source for one instrument.
type Source interface {
	Poll(ctx context.Context, sourceID, symbol string) (model.Vote, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, sourceID, symbol string) (model.Vote, error)

func (f SourceFunc) Poll(ctx context.Context, sourceID, symbol string) (model.Vote, error) {
	return f(ctx, sourceID, symbol)
}

// Panel is the fixed set of named sources polled every cycle.
type Panel struct {
	logger  *logrus.Entry
	ids     []string
	source  Source
	workers int
}

func NewPanel(logger *logrus.Entry, ids []string, source Source) *Panel {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Panel{
		logger:  logger.WithField("component", "panel"),
		ids:     append([]string(nil), ids...),
		source:  source,
		workers: len(ids),
	}
}

func (p *Panel) IDs() []string {
	return append([]string(nil), p.ids...)
}

// Collect polls every source for symbol and returns the votes that arrived, in panel order.
// A failing or misbehaving source is logged and left out; it never fails the collection.
func (p *Panel) Collect(ctx context.Context, symbol string) []model.Vote {
	slots := make([]*model.Vote, len(p.ids))

	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i, id := range p.ids {
		g.Go(func() error {
			vote, err := p.source.Poll(gctx, id, symbol)
			if err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"source": id,
					"symbol": symbol,
				}).Warn("signal source failed, skipping")
				return nil
			}
			if err := validate(id, vote); err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"source": id,
					"symbol": symbol,
				}).Warn("signal source returned an invalid vote, skipping")
				return nil
			}
			slots[i] = &vote
			return nil
		})
	}
	_ = g.Wait()

	votes := make([]model.Vote, 0, len(slots))
	for _, v := range slots {
		if v != nil {
			votes = append(votes, *v)
		}
	}
	return votes
}

func validate(id string, v model.Vote) error {
	if v.Source != id {
		return fmt.Errorf("vote attributed to %q", v.Source)
	}
	if !v.Action.Valid() {
		return fmt.Errorf("unknown action %q", v.Action)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", v.Confidence)
	}
	return nil
}

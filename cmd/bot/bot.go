package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"consensusbot/src/connectors"
	"consensusbot/src/database"
	"consensusbot/src/handler"
	"consensusbot/src/ledger"
	"consensusbot/src/repository"
	"consensusbot/src/scheduler"
	"consensusbot/src/server"
	"consensusbot/src/signals"
	"consensusbot/src/tracing"
	"consensusbot/src/weights"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// exchange prices symbols and, in live mode, places market orders.
type exchange interface {
	scheduler.PriceSource
	scheduler.OrderExecutor
}

var newExchange = func(log *logrus.Entry, cfg connectors.Config) exchange {
	return connectors.NewBinance(log, cfg)
}

type Bot struct {
	Log     *logrus.Entry
	Version string
}

// Start reads the configuration from the environment and runs until SIGINT or SIGTERM.
func (b *Bot) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	return b.Run(ctx, LoadSettings())
}

// Run assembles the bot from settings and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	SetupLogger(settings.Log)

	log := b.Log
	if log == nil {
		log = logrus.WithField("cmd", "bot")
	}

	shutdownTracing, err := tracing.Init(settings.Tracing, b.Version, nil)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	db, err := database.InitMainDB(settings.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	store := repository.NewStore(db)

	panel, err := signals.BuildPanel(log, settings.Signals)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	persisted, err := store.LoadWeights(ctx, panel.IDs(), weights.DefaultWeight)
	if err != nil {
		return fmt.Errorf("load engine weights: %w", err)
	}
	weightStore := weights.NewStore(settings.Scheduler.WeightLR, panel.IDs(), persisted)

	book := ledger.New(log, settings.Ledger)
	ex := newExchange(log, settings.Connectors)

	deps := scheduler.Deps{
		Panel:   panel,
		Ledger:  book,
		Weights: weightStore,
		Prices:  ex,
		Sink:    store,
	}
	if settings.Connectors.LiveOrders {
		deps.Orders = ex
	}

	sched, err := scheduler.New(log, settings.Scheduler, deps)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	log.WithFields(logrus.Fields{
		"symbols":   settings.Scheduler.Symbols,
		"panel":     panel.IDs(),
		"trade_usd": settings.Ledger.TradeUSD,
		"tp_pct":    settings.Ledger.TPPct,
		"sl_pct":    settings.Ledger.SLPct,
		"live":      settings.Connectors.LiveOrders,
		"db_driver": settings.Database.Driver,
	}).Info("consensus bot starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if settings.Server.Enabled {
		router := server.NewRouter(server.Routes{
			Status:       handler.StatusHandler(sched, book),
			Weights:      handler.WeightsHandler(weightStore),
			Positions:    handler.PositionsHandler(book),
			Trades:       handler.TradesHandler(store.Trades),
			TradeSummary: handler.TradeSummaryHandler(store.Trades),
		})
		g.Go(func() error {
			return server.StartServer(gctx, settings.Server.Port, router)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.WithField("open_positions", book.Len()).Info("consensus bot stopped")
	return nil
}

package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"consensusbot/src/database"
	"consensusbot/src/repository"

	"github.com/sirupsen/logrus"
)

// Report prints the learned weights and the latest trades from the trade database.
type Report struct {
	Log *logrus.Entry
	Out io.Writer
}

func (r *Report) Start(cfg Config) error {
	if _, err := database.InitMainDB(database.GetConfig()); err != nil {
		return err
	}
	return r.Write(context.Background(), repository.NewMainStore(), cfg)
}

// Write renders the report from store.
func (r *Report) Write(ctx context.Context, store *repository.Store, cfg Config) error {
	weights, err := store.Weights.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	trades, err := store.Trades.FindLatest(ctx, cfg.Symbol, cfg.Limit)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	summary, err := store.Trades.Summary(ctx)
	if err != nil {
		return fmt.Errorf("summarize trades: %w", err)
	}

	tw := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "ENGINE\tWEIGHT\tUPDATED")
	for _, w := range weights {
		fmt.Fprintf(tw, "%s\t%.4f\t%s\n", w.Source, w.Weight, w.UpdatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "CLOSED\tSYMBOL\tSIDE\tENTRY\tEXIT\tPNL_USD\tPNL_PCT\tRESULT\tREASON")
	for _, t := range trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6g\t%.6g\t%.2f\t%.4f\t%s\t%s\n",
			t.ClosedAt.UTC().Format(time.RFC3339), t.Symbol, t.Side, t.EntryPrice, t.ExitPrice,
			t.PnlUSD, t.PnlPct, t.Result, t.Reason)
	}
	fmt.Fprintln(tw)

	winRate := 0.0
	if summary.Total > 0 {
		winRate = float64(summary.Wins) / float64(summary.Total) * 100
	}
	fmt.Fprintf(tw, "trades: %d\twins: %d\tlosses: %d\twin rate: %.1f%%\tpnl: %.2f USD\n",
		summary.Total, summary.Wins, summary.Losses, winRate, summary.PnlUSD)

	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Log != nil {
		r.Log.WithFields(logrus.Fields{
			"engines": len(weights),
			"trades":  len(trades),
		}).Debug("report written")
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"consensusbot/cmd/bot"
	"consensusbot/cmd/report"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Warn("could not load .env file")
	}

	app := cli.NewApp()
	app.Name = "consensusbot"
	app.Usage = "multi-engine consensus trading bot"
	app.Version = Version

	app.Commands = []cli.Command{
		botCMD,
		reportCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	botCMD = cli.Command{
		Name:        "bot",
		Usage:       "run the consensus trading loop",
		Action:      botAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Polls the engine panel every cycle, opens positions on plurality decisions and closes them on target, stop or timeout`,
	}
	reportCMD = cli.Command{
		Name:      "report",
		Usage:     "print engine weights and recent trades",
		Action:    reportAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "limit",
				Usage: "number of trades to list",
				Value: 20,
			},
			cli.StringFlag{
				Name:  "symbol",
				Usage: "only list trades for this symbol",
			},
		},
		Description: `Print the learned engine weights and the latest closed trades`,
	}
)

func botAction(_ *cli.Context) error {
	logrus.WithField("version", Version).Info("Starting bot CMD")

	b := &bot.Bot{
		Log:     logrus.WithField("cmd", "bot"),
		Version: Version,
	}
	if err := b.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func reportAction(c *cli.Context) error {
	cfg := report.GetConfig()
	if c.IsSet("limit") {
		cfg.Limit = c.Int("limit")
	}
	if c.IsSet("symbol") {
		cfg.Symbol = c.String("symbol")
	}

	r := &report.Report{
		Log: logrus.WithField("cmd", "report"),
		Out: os.Stdout,
	}
	if err := r.Start(cfg); err != nil {
		logrus.WithError(err).Error("Writing report")
		return err
	}

	return nil
}

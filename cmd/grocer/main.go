package main

import (
	"os"

	"github.com/safar/smartgrocer/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "grocer",
		Usage: "store billing, inventory and dues ledger",
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			reconcileCommand,
			remindCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}

func setupLogging(cfg *config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := setupLogging(&cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

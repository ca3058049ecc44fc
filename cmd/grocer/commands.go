package main

import (
	"github.com/jmoiron/sqlx"
	"github.com/safar/smartgrocer/internal/config"
	"github.com/safar/smartgrocer/internal/database"
	"github.com/safar/smartgrocer/internal/notify"
	"github.com/safar/smartgrocer/internal/reminder"
	"github.com/safar/smartgrocer/internal/store"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP API",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "migrate", Usage: "apply pending migrations before serving"},
	},
	Action: serve,
}

var migrateCommand = &cli.Command{
	Name:      "migrate",
	Usage:     "apply or revert the schema",
	ArgsUsage: "up|down",
	Action: func(c *cli.Context) error {
		direction := database.MigrateDirection(c.Args().First())
		if direction == "" {
			direction = database.MigrateUp
		}

		_, db, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		return database.Migrate(db.DB, direction)
	},
}

var reconcileCommand = &cli.Command{
	Name:  "reconcile",
	Usage: "compare cached pending dues with the ledger",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "fix", Usage: "rewrite drifted balances from the ledger"},
	},
	Action: func(c *cli.Context) error {
		_, db, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		discrepancies, err := store.ReconcileDues(c.Context, db)
		if err != nil {
			return err
		}
		for _, d := range discrepancies {
			log.WithField("drift", d.Drift().String()).Warn(d.String())
		}
		log.WithField("users", len(discrepancies)).Info("Reconciliation finished")

		if !c.Bool("fix") || len(discrepancies) == 0 {
			return nil
		}

		_, err = store.RepairDues(c.Context, db)
		return err
	},
}

var remindCommand = &cli.Command{
	Name:  "remind",
	Usage: "send dues reminders to customers",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "message", Usage: "broadcast this text to every debtor instead of the overdue ones"},
	},
	Action: func(c *cli.Context) error {
		cfg, db, err := connect()
		if err != nil {
			return err
		}
		defer db.Close()

		sender, err := notify.New(cfg.Notification.TelegramBotToken)
		if err != nil {
			return err
		}

		svc := reminder.NewService(store.NewNotificationRepository(db), sender, cfg.Notification.OverdueThreshold())
		summary, err := svc.Send(c.Context, c.String("message"))
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"debtors": summary.TotalDebtors,
			"sent":    summary.RemindersSent,
			"failed":  len(summary.Errors),
		}).Info("Reminders finished")
		return nil
	},
}

func connect() (*config.Config, *sqlx.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/safar/smartgrocer/internal/api"
	"github.com/safar/smartgrocer/internal/database"
	"github.com/safar/smartgrocer/internal/kv"
	"github.com/safar/smartgrocer/internal/notify"
	"github.com/safar/smartgrocer/internal/store"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 15 * time.Second

func serve(c *cli.Context) error {
	cfg, db, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("Connected to database successfully")

	if c.Bool("migrate") {
		if err := database.Migrate(db.DB, database.MigrateUp); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys, err := kv.New(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	if closer, ok := keys.(*kv.Redis); ok {
		defer closer.Close()
	}

	sender, err := notify.New(cfg.Notification.TelegramBotToken)
	if err != nil {
		return err
	}

	if cfg.Ledger.ReconcileInterval > 0 {
		go reconcileLoop(ctx, db, cfg.Ledger.ReconcileInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(cfg, db, keys, sender).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// reconcileLoop reports dues drift every interval until ctx is cancelled. It never repairs.
func reconcileLoop(ctx context.Context, db *sqlx.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			discrepancies, err := store.ReconcileDues(ctx, db)
			if err != nil {
				log.WithError(err).Error("Dues reconciliation failed")
				continue
			}
			for _, d := range discrepancies {
				log.WithField("drift", d.Drift().String()).Warn(d.String())
			}
		}
	}
}

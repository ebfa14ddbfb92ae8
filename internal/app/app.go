// Package app wires configuration into the concrete dependencies the
// binaries share: logger, record-store backend, alert channel, and
// usage ledger.
package app

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/drudge/internal/config"
	"github.com/phrazzld/drudge/internal/notify"
	"github.com/phrazzld/drudge/internal/platform/logger"
	"github.com/phrazzld/drudge/internal/platform/notionstore"
	"github.com/phrazzld/drudge/internal/platform/pgstore"
	"github.com/phrazzld/drudge/internal/store"
	"github.com/phrazzld/drudge/internal/usage"
)

// App holds the initialized shared dependencies.
type App struct {
	Cfg      *config.Config
	Log      *slog.Logger
	Store    store.TaskStore
	Notifier notify.Notifier
	Ledger   *usage.Ledger

	closers []func() error
}

// Init loads configuration and constructs the shared dependencies.
// Any error here is a configuration-class fatal: nothing has been
// mutated yet and the process should exit non-zero.
func Init() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Log.Level)

	a := &App{
		Cfg:    cfg,
		Log:    log,
		Ledger: usage.NewLedger(cfg.State.UsageFile),
	}

	if err := a.initStore(); err != nil {
		return nil, err
	}

	if cfg.Notify.DiscordToken != "" && cfg.Notify.DiscordChannelID != "" {
		a.Notifier = notify.NewDiscordNotifier(cfg.Notify.DiscordToken, cfg.Notify.DiscordChannelID)
	} else {
		a.Notifier = notify.Noop{}
		log.Debug("alert channel not configured, alerts disabled")
	}

	return a, nil
}

func (a *App) initStore() error {
	if err := a.Cfg.Store.ValidateStore(); err != nil {
		return err
	}
	switch a.Cfg.Store.Driver {
	case "notion":
		var opts []notionstore.Option
		if a.Cfg.Store.Notion.BaseURL != "" {
			opts = append(opts, notionstore.WithBaseURL(a.Cfg.Store.Notion.BaseURL))
		}
		a.Store = notionstore.New(a.Cfg.Store.Notion.APIKey, a.Cfg.Store.Notion.DatabaseID, opts...)
		return nil

	case "postgres":
		db, err := pgstore.Open(a.Cfg.Store.Postgres.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := pgstore.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate postgres store: %w", err)
		}
		a.Store = pgstore.New(db)
		return nil

	default:
		return fmt.Errorf("unknown store driver %q", a.Cfg.Store.Driver)
	}
}

// Close releases held resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Error("failed to close resource", "error", err)
		}
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fee-tracker/internal/alerting"
	"fee-tracker/internal/api"
	"fee-tracker/internal/config"
	"fee-tracker/internal/fetcher"
	"fee-tracker/internal/history"
	"fee-tracker/internal/insights"
	"fee-tracker/internal/metrics"
	"fee-tracker/internal/scheduler"
	"fee-tracker/internal/service"
	"fee-tracker/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newHorizon() *fetcher.Horizon {
	return fetcher.NewHorizon(fetcher.HorizonOptions{
		BaseURL:   a.Config.Horizon.BaseURL,
		Timeout:   a.Config.Horizon.RequestTimeout,
		UserAgent: a.Config.Horizon.UserAgent,
	}, a.Logger)
}

func (a *App) newWatcher() *alerting.Watcher {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	notifier := alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	return alerting.NewWatcher(notifier, a.Config.Alerting.Cooldown, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run starts the polling loop and the HTTP server and blocks until both have
// stopped. SIGINT and SIGTERM trigger a graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics.Register()

	store, err := history.New(a.Config.History.Capacity)
	if err != nil {
		return err
	}
	engine, err := insights.New(a.Config.Insights)
	if err != nil {
		return err
	}

	var archive storage.SnapshotArchive
	db, closeDB, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		a.Logger.Warn().Msg("database.dsn not configured; snapshot archive disabled")
	} else {
		defer closeDB()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		archive = db
	}

	var observer service.InsightsObserver
	if w := a.newWatcher(); w != nil {
		observer = w
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		PollOnStart:  a.Config.Scheduler.PollOnStart,
	}, a.Logger)

	horizon := a.newHorizon()
	a.Logger.Info().Str("horizon", horizon.BaseURL()).Int("capacity", store.Capacity()).Msg("horizon client initialized")

	svc := service.New(sched, horizon, store, engine, archive, observer, a.Logger)
	svc.SetArchiveTimeout(a.Config.Database.WriteTimeout)
	server := api.NewServer(a.Config.Server, api.Deps{
		History:   store,
		Insights:  engine,
		Ingestion: svc,
	}, a.Logger)

	return a.runAll(ctx, cancel, svc.Run, server.Run)
}

// runAll runs each task until ctx is done. The first task to fail cancels
// the others, and runAll returns once every task has returned.
func (a *App) runAll(ctx context.Context, cancel context.CancelFunc, tasks ...func(context.Context) error) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := task(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			a.Logger.Error().Err(err).Msg("component terminated with error")
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			cancel()
		}()
	}

	a.Logger.Info().Msg("fee tracker started")
	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("fee tracker: %w", firstErr)
	}
	a.Logger.Info().Msg("application shut down cleanly")
	return nil
}

// ExportOptions hold parameters for exporting archived snapshots.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// InspectOptions configure the inspect command.
type InspectOptions struct {
	TxHash string
}

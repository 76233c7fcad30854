package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/daily-prompt-bot/internal/catalog"
	"github.com/ykvlv/daily-prompt-bot/internal/config"
	"github.com/ykvlv/daily-prompt-bot/internal/domain"
	"github.com/ykvlv/daily-prompt-bot/internal/engagement"
	"github.com/ykvlv/daily-prompt-bot/internal/scheduler"
	"github.com/ykvlv/daily-prompt-bot/internal/store"
	"github.com/ykvlv/daily-prompt-bot/internal/telegram"
	"github.com/ykvlv/daily-prompt-bot/internal/texts"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	catalog catalog.Catalog
	texts   texts.Texts
	client  *telegram.Client
	httpSrv *http.Server
}

// New connects to Telegram and prepares the health endpoint. The catalog and
// texts are loaded by the caller so that a bad catalog fails before any I/O.
func New(cfg config.Config, log *zap.Logger, cat catalog.Catalog, tx texts.Texts) (*App, error) {
	client, err := telegram.NewClient(cfg.BotToken, cfg.SendTimeout, log.Named("telegram"))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, catalog: cat, texts: tx, client: client, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting daily-prompt-bot",
		zap.String("bot", a.client.Username()),
		zap.Int("prompts", a.catalog.Len()),
		zap.String("http", a.cfg.HTTPAddr),
	)

	loc := a.cfg.Location()

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath, loc)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	defer func() { _ = repo.Close() }()
	a.log.Info("sqlite ready", zap.String("path", a.cfg.DBPath))

	svc := engagement.New(repo, a.client, a.log.Named("engagement"), engagement.Options{
		Catalog:       a.catalog,
		Texts:         a.texts,
		Location:      loc,
		ReminderDelay: a.cfg.ReminderDelay,
		OpTimeout:     a.cfg.OpTimeout,
		Workers:       a.cfg.BatchWorkers,
	})
	router := telegram.NewRouter(svc, a.client, a.log.Named("router"), a.texts)

	clock, err := domain.ParseClock(a.cfg.DispatchTime)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(svc, a.log.Named("scheduler"), scheduler.Options{
		Location:     loc,
		DispatchAt:   clock,
		ScanEnabled:  a.cfg.ReminderScanEnabled,
		ScanInterval: a.cfg.ReminderScanInterval,
		ScanFirst:    a.cfg.ReminderScanFirst,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	updCh := a.client.Updates(a.cfg.PollTimeout)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.client.StopUpdates()

			// Create a short-lived shutdown context and cancel it immediately after use.
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}

			// Batches stop between users and handlers drain; wait so the store is
			// not closed under them.
			wg.Wait()
			return nil

		case upd, ok := <-updCh:
			if !ok {
				updCh = nil
				continue
			}
			// Updates from different users are handled in parallel; the
			// engagement service serializes per user.
			handleAsync(ctx, &wg, router, upd)
		}
	}
}

type updateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

// handleAsync runs h on its own goroutine tracked by wg. The handler's context
// is not canceled with ctx, so shutdown drains it instead of failing its
// store calls.
func handleAsync(ctx context.Context, wg *sync.WaitGroup, h updateHandler, upd tgbotapi.Update) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.HandleUpdate(context.WithoutCancel(ctx), upd)
	}()
}

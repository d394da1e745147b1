package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/config"
	"github.com/igreja/tesouraria/internal/metrics"
	"github.com/igreja/tesouraria/internal/repository"
	"github.com/igreja/tesouraria/internal/repository/memory"
	"github.com/igreja/tesouraria/internal/repository/mongodb"
	"github.com/igreja/tesouraria/internal/repository/sheets"
	"github.com/igreja/tesouraria/internal/scheduler"
	"github.com/igreja/tesouraria/internal/server/handlers"
	"github.com/igreja/tesouraria/internal/server/router"
	backupsvc "github.com/igreja/tesouraria/internal/service/backup"
	birthdaysvc "github.com/igreja/tesouraria/internal/service/birthdays"
	notificationsvc "github.com/igreja/tesouraria/internal/service/notification"
	reportingsvc "github.com/igreja/tesouraria/internal/service/reporting"
	"github.com/igreja/tesouraria/internal/service/workspace"
	"github.com/igreja/tesouraria/pkg/clients/identity"
	whatsappclient "github.com/igreja/tesouraria/pkg/clients/whatsapp"
	"github.com/igreja/tesouraria/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, closeStore := openStore(cfg, baseLogger)
	defer closeStore()

	m := metrics.New()
	session := auth.NewSession(identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.APIKey), baseLogger.Named("auth"))

	var whatsClient whatsappclient.Client
	if cfg.WhatsApp.Enabled() {
		whatsClient = whatsappclient.NewClient(cfg.WhatsApp)
	} else {
		baseLogger.Warn("whatsapp not configured, notifications disabled")
	}
	notifier := notificationsvc.NewService(whatsClient, cfg.WhatsApp.Recipient, m, baseLogger.Named("svc.notification"))
	defer notifier.Wait()

	ws := workspace.New(workspace.Deps{
		Store:          store,
		Session:        session,
		Notifier:       notifier,
		Metrics:        m,
		Logger:         baseLogger,
		ReconcileDelay: cfg.Sync.ReconcileDelay,
	})
	defer ws.Close()

	birthdaySvc := birthdaysvc.NewService(ws.Members, store, session, notifier, cfg.Location(), baseLogger.Named("svc.birthdays"))
	backupSvc := backupsvc.NewService(store, session, cfg.Backup.Dir, cfg.Backup.Retention, baseLogger.Named("svc.backup"))

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Info("google sheets not configured, spreadsheet export disabled")
	}

	reportingSvc := reportingsvc.NewService(reportingsvc.Sources{
		Income:   ws.Income,
		Expenses: ws.Expenses,
		Members:  ws.Members,
		Profile:  ws.Profile,
	}, sheetsRepo, cfg.Location(), baseLogger.Named("svc.reporting"))

	handler := handlers.NewHandler(handlers.Deps{
		Auth:      session,
		Workspace: ws,
		Birthdays: birthdaySvc,
		Backups:   backupSvc,
		Reports:   reportingSvc,
		Logger:    baseLogger.Named("handlers"),
	})
	engine := router.New(handler, m, baseLogger.Named("router"))

	sched, err := scheduler.NewScheduler(cfg.Schedule, cfg.Location(), session, backupSvc, birthdaySvc, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openStore connects the configured document store. The returned func
// releases it.
func openStore(cfg *config.Config, baseLogger *zap.Logger) (repository.DocumentStore, func()) {
	if cfg.Store.Driver == config.StoreMemory {
		baseLogger.Warn("using in-memory store, data is lost on exit")
		return memory.NewStore(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoRepo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	if err := mongoRepo.EnsureIndexes(ctx, workspace.Orders()); err != nil {
		// Ordered queries fall back to client-side sorting without them.
		baseLogger.Warn("failed to ensure indexes", zap.Error(err))
	}

	return mongoRepo, func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}
}

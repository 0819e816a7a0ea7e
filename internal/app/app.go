package app

import (
	"context"
	"net/http"
	"os"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/config"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/report"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/session"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/store"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/subscription"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/tcpserver"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/updates"
)

type App struct {
	httpServer *http.Server
	tcpServer  *tcpserver.Server
	reaper     *session.Reaper

	reaperStop context.CancelFunc
	cleanup    func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {

	if err := os.MkdirAll(cfg.UpdateDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, err
	}

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	registry := session.NewRegistry()

	statusStore := store.NewRedisStatusStore(infra.Redis.Client)
	pgStore := store.NewPostgresStore(infra.DB)
	subs := subscription.NewClient(cfg.AuthServerURL)

	catalog, err := updates.NewCatalog(cfg.UpdateDir)
	if err != nil {
		return nil, err
	}

	reports := report.NewService(registry, statusStore, pgStore, cfg.RequestTimeout)

	tcpSrv := tcpserver.NewServer(cfg, tcpserver.Deps{
		Registry: registry,
		Subs:     subs,
		Status:   statusStore,
		Devices:  pgStore,
		Reports:  pgStore,
		Catalog:  catalog,
	})

	reaper := session.NewReaper(session.ReaperConfig{
		SerialGracePeriod: cfg.SerialGracePeriod,
		IdleTimeout:       cfg.IdleTimeout,
		LogDir:            cfg.LogDir,
		LogRetentionDays:  cfg.LogRetentionDays,
	}, registry, statusStore)

	router := setupHTTP(cfg, registry, reports, catalog)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	return &App{
		httpServer: server,
		tcpServer:  tcpSrv,
		reaper:     reaper,
		cleanup: func() error {
			_ = catalog.Close()
			_ = infra.Redis.Close()
			return infra.DB.Close()
		},
	}, nil
}

// Run starts the TCP listener and the reaper, then serves HTTP until
// Shutdown is called.
func (a *App) Run() error {
	if err := a.tcpServer.Start(); err != nil {
		return err
	}

	reaperCtx, stop := context.WithCancel(context.Background())
	a.reaperStop = stop
	go a.reaper.Run(reaperCtx)

	err := a.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	a.tcpServer.Stop()

	if a.reaperStop != nil {
		a.reaperStop()
	}

	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}

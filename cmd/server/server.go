package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/paularlott/cli"

	"github.com/pixelpi-co-uk/pixelpi/internal/adapter"
	"github.com/pixelpi-co-uk/pixelpi/internal/api"
	"github.com/pixelpi-co-uk/pixelpi/internal/config"
	"github.com/pixelpi-co-uk/pixelpi/internal/dnsmasq"
	"github.com/pixelpi-co-uk/pixelpi/internal/log"
	"github.com/pixelpi-co-uk/pixelpi/internal/netman"
	"github.com/pixelpi-co-uk/pixelpi/internal/storage"
	"github.com/pixelpi-co-uk/pixelpi/internal/sysd"
	"github.com/pixelpi-co-uk/pixelpi/internal/system"
	"github.com/pixelpi-co-uk/pixelpi/internal/wifiap"
	"github.com/pixelpi-co-uk/pixelpi/internal/wled"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "Start the PixelPi daemon",
		Description: "Start the HTTP API for adapter provisioning, WLED discovery and WiFi AP control",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Load()
			log.Configure(cfg.LogLevel, cfg.LogFormat)

			log.Info("Configuration loaded", "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				log.Error("Failed to create data directory", "path", cfg.DataDir, "error", err)
				return err
			}

			store, err := storage.NewSQLiteStorage(filepath.Join(cfg.DataDir, "inventory.db"))
			if err != nil {
				log.Error("Failed to initialize storage", "error", err)
				return err
			}
			defer store.Close()

			// Control planes share one command runner.
			runner := system.NewExecRunner()
			nm := netman.NewClient(runner)
			services := sysd.NewManager(runner)
			confStore := dnsmasq.NewStore(cfg.DnsmasqConf, cfg.DnsmasqService, services)

			wifi := wifiap.NewController(nm, services, confStore, nil,
				cfg.WirelessInterface, cfg.APConnectionName, cfg.APBootUnit)
			discovery := adapter.NewDiscovery(cfg.BuiltinInterface, cfg.WirelessInterface)
			provisioner := adapter.NewConfigurator(nm, confStore)
			scanner := wled.NewScanner(store, cfg.ScanTimeout)

			// Operators edit dnsmasq.conf directly; drop cached status when
			// they do.
			watchCtx, cancelWatch := context.WithCancel(ctx)
			defer cancelWatch()
			if err := confStore.Watch(watchCtx, wifi.InvalidateStatus); err != nil {
				log.Warn("Config file watch unavailable", "error", err)
			}

			apiHandler := api.NewHandler(wifi, discovery, provisioner, scanner, confStore, store)

			mux := http.NewServeMux()
			apiHandler.RegisterRoutes(mux)
			mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			var handler http.Handler = mux
			if cfg.IsAPIAuthEnabled() {
				handler = api.AuthMiddleware(cfg.APIAuthToken, handler)
			}
			handler = api.SecurityHeadersMiddleware(handler)

			server := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: handler,
			}

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
				<-sigChan
				log.Info("Shutting down server...")
				server.Close()
			}()

			log.Info("Starting PixelPi server", "addr", cfg.ListenAddr)
			if cfg.IsAPIAuthEnabled() {
				log.Info("API authentication enabled")
			}

			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Server error", "error", err)
				return err
			}

			log.Info("Server stopped")
			return nil
		},
	}
}

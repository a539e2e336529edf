package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/config"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/events"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "banners-api",
		Short: "Banner rotation backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newSeedCommand(), newExportCommand(), newWatchCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("display.timezone"), "IANA timezone used to pick today's banners")
	cmd.PersistentFlags().String("store-backend", defaults.GetString("store.backend"), "Config store backend (memory, file, redis, sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("store.database.path"), "SQLite database path")
	cmd.PersistentFlags().String("assets-backend", defaults.GetString("assets.backend"), "Asset host backend (local, s3)")
	cmd.PersistentFlags().String("nats-url", defaults.GetString("events.nats_url"), "NATS server URL for change events")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "display.timezone", "timezone")
	bindFlag(cmd, "store.backend", "store-backend")
	bindFlag(cmd, "store.database.path", "database-path")
	bindFlag(cmd, "assets.backend", "assets-backend")
	bindFlag(cmd, "events.nats_url", "nats-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	documentStore, closeStore, err := openStore(ctx, appConfig.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	assetHost, uploadsDir, err := openAssets(ctx, appConfig.Assets)
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	publishers := events.Fanout{dispatcher}
	if appConfig.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(appConfig.NATSURL)
		if err != nil {
			return err
		}
		publishers = append(publishers, natsPublisher)
		logger.Info("publishing change events to nats", zap.String("url", appConfig.NATSURL))
	}
	defer publishers.Close() //nolint:errcheck

	bannersService, err := banners.NewService(banners.ServiceConfig{
		Store:             documentStore,
		DocumentKey:       appConfig.Store.Key,
		Assets:            assetHost,
		Publisher:         publishers,
		IDProvider:        banners.NewUUIDProvider(),
		Clock:             time.Now,
		Location:          appConfig.Location,
		StoreTimeout:      appConfig.Store.Timeout,
		AssetTimeout:      appConfig.Assets.Timeout,
		CompensateOrphans: appConfig.Assets.CompensateOrphans,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		BannersService: bannersService,
		Realtime:       dispatcher,
		Metrics:        metrics.New(),
		Logger:         logger,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		MaxUploadBytes: appConfig.Assets.MaxUploadBytes,
		UploadsDir:     uploadsDir,
		UploadsPrefix:  appConfig.Assets.LocalURLPrefix,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store_backend", appConfig.Store.Backend),
			zap.String("assets_backend", appConfig.Assets.Backend),
			zap.String("timezone", appConfig.Timezone))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		// Streams hold their requests open; end them before Shutdown waits on them.
		_ = dispatcher.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

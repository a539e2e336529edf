package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarcoPoloResearchLab/banners/backend/internal/banners"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/config"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/events"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/banners/backend/internal/seed"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// openService builds a service on the configured store without an asset host;
// the offline commands only touch the config document.
func openService(cmd *cobra.Command) (*banners.Service, *zap.Logger, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, nil, nil, err
	}
	documentStore, closeStore, err := openStore(cmd.Context(), appConfig.Store, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	var publisher events.Publisher = &events.NoopPublisher{}
	if appConfig.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(appConfig.NATSURL)
		if err != nil {
			closeStore()
			return nil, nil, nil, err
		}
		publisher = natsPublisher
	}
	closePublisher := func() { _ = publisher.Close() }

	service, err := banners.NewService(banners.ServiceConfig{
		Store:        documentStore,
		DocumentKey:  appConfig.Store.Key,
		Publisher:    publisher,
		Location:     appConfig.Location,
		StoreTimeout: appConfig.Store.Timeout,
		Logger:       logger,
	})
	if err != nil {
		closePublisher()
		closeStore()
		return nil, nil, nil, err
	}
	return service, logger, func() {
		closePublisher()
		closeStore()
		_ = logger.Sync()
	}, nil
}

func newSeedCommand() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Import banner entries from a TOML or JSON file into the config store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			service, logger, cleanup, err := openService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := service.Import(cmd.Context(), entries, overwrite)
			if err != nil {
				return err
			}
			logger.Info("seed applied",
				zap.String("file", args[0]),
				zap.Int("added", len(result.Added)),
				zap.Int("replaced", len(result.Replaced)),
				zap.Int("skipped", len(result.Skipped)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace entries whose id already exists")
	return cmd
}

func newExportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored banner entries as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, cleanup, err := openService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			listing, err := service.Export(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return seed.WriteTOML(cmd.OutOrStdout(), listing.Entries)
			}
			file, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := seed.WriteTOML(file, listing.Entries); err != nil {
				_ = file.Close()
				return err
			}
			return file.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	return cmd
}

func newWatchCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print banner change events published on NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if appConfig.NATSURL == "" {
				return fmt.Errorf("events.nats_url is required to watch change events")
			}
			subscriber, err := events.NewNATSSubscriber(appConfig.NATSURL)
			if err != nil {
				return err
			}
			defer subscriber.Close() //nolint:errcheck

			messages, cancel, err := subscriber.Subscribe(subject)
			if err != nil {
				return err
			}
			defer cancel()

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			for {
				select {
				case <-signalCtx.Done():
					return nil
				case message, open := <-messages:
					if !open {
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(message))
				}
			}
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "banners.>", "NATS subject to watch")
	return cmd
}

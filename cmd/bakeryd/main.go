package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bakery-storefront-edge/config"
	"bakery-storefront-edge/internal/app"
	"bakery-storefront-edge/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config/config.yaml" // Default path for local development
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "bakeryd",
		Short:        "Offline-resilient edge for the bakery storefront",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the storefront through the cache and run background sync",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(configPath, func(a *app.App, log *zap.SugaredLogger) error {
					ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
					defer stop()
					return a.Run(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Drain the pending-order queue once and print the report",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(configPath, func(a *app.App, log *zap.SugaredLogger) error {
					if !a.Monitor.Probe(cmd.Context()) {
						log.Warn("upstream unreachable, orders will stay queued")
					}
					report, _, err := a.Edge.Sync(cmd.Context(), a.Sync.Tag())
					if err != nil {
						return err
					}
					return printJSON(cmd, report)
				})
			},
		},
		&cobra.Command{
			Use:   "pending",
			Short: "List orders waiting in the local queue",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(configPath, func(a *app.App, _ *zap.SugaredLogger) error {
					orders, err := a.Queue.List(cmd.Context())
					if err != nil {
						return err
					}
					return printJSON(cmd, orders)
				})
			},
		},
		newMenuCmd(&configPath),
		newOrderCmd(&configPath),
		newAdminCmd(&configPath),
	)
	return root
}

func newMenuCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "menu [cafe|bakery]",
		Short: "Print the menu, from the cache when the bakery is unreachable",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := ""
			if len(args) == 1 {
				category = args[0]
			}
			return withApp(*configPath, func(a *app.App, _ *zap.SugaredLogger) error {
				items, err := a.Upstream.Menu(cmd.Context(), category)
				if err != nil {
					return err
				}
				return printJSON(cmd, items)
			})
		},
	}
}

func newOrderCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "order <id>",
		Short: "Show an order stored by the bakery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app.App, _ *zap.SugaredLogger) error {
				order, err := a.Upstream.Order(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, order)
			})
		},
	}
}

func newAdminCmd(configPath *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Read the bakery's admin endpoints",
	}

	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Download the CSV export of every order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app.App, log *zap.SugaredLogger) error {
				data, err := a.Upstream.ExportOrders(cmd.Context())
				if err != nil {
					return err
				}
				if output == "" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				log.Infof("wrote %d bytes to %s", len(data), output)
				return nil
			})
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "write the CSV to a file instead of stdout")

	admin.AddCommand(
		&cobra.Command{
			Use:   "orders",
			Short: "List every order stored by the bakery",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(*configPath, func(a *app.App, _ *zap.SugaredLogger) error {
					orders, err := a.Upstream.AdminOrders(cmd.Context())
					if err != nil {
						return err
					}
					return printJSON(cmd, orders)
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show order count, revenue and popular items",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(*configPath, func(a *app.App, _ *zap.SugaredLogger) error {
					stats, err := a.Upstream.AdminStats(cmd.Context())
					if err != nil {
						return err
					}
					return printJSON(cmd, stats)
				})
			},
		},
		export,
	)
	return admin
}

// withApp loads the config, builds the app and tears it down after fn.
func withApp(configPath string, fn func(*app.App, *zap.SugaredLogger) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	log, syncLog, err := logging.New(cfg.Log.Production)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = syncLog() }()
	log.Infof("configuration loaded successfully from %s", configPath)

	a, cleanup, err := app.Bootstrap(cfg, log)
	if err != nil {
		log.Errorf("bootstrap failed: %v", err)
		return err
	}
	defer cleanup()

	return fn(a, log)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Command finmodel runs the financial-model pipeline server and its
// operational subcommands: serve, migrate, and prompts reset/activate.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planforge/finmodel/config"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "finmodel",
		Short:   "Financial-model pipeline server",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (overrides FINMODEL_CONFIG)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newPromptsCmd(&configPath),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig applies an explicit --config flag on top of the loader's own
// FINMODEL_CONFIG/default-path resolution, then returns the path actually
// used so callers can watch it.
func loadConfig(explicitPath string) (*config.Config, *config.Loader, string, error) {
	if explicitPath != "" {
		os.Setenv(config.ConfigFileEnv, explicitPath)
	}
	logger := newLogger()
	loader := config.NewLoader(logger)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, "", err
	}
	path := explicitPath
	if path == "" {
		path = os.Getenv(config.ConfigFileEnv)
	}
	if path == "" {
		path = config.DefaultConfigPath
	}
	return cfg, loader, path, nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loader, path, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger := newLogger()
			app, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return app.Serve(cmd.Context(), loader, path)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the configured store and apply schema migrations, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.DSN == "" {
				fmt.Println("store.dsn is empty; the in-memory backend has no schema to migrate")
				return nil
			}
			s, err := openStoreForMigration(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Println("migration complete")
			return nil
		},
	}
}

func newPromptsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect or override built-in prompt text",
	}
	cmd.AddCommand(newPromptsListCmd(configPath), newPromptsActivateCmd(configPath), newPromptsResetCmd(configPath))
	return cmd
}

func newPromptsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in prompt keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return withPromptEnv(cmd.Context(), cfg, func(ctx context.Context, env *promptEnv) error {
				for _, def := range env.prompts.ListBuiltins() {
					fmt.Printf("%-20s phase=%-8s type=%s  %s\n", def.Key, def.Phase, def.Type, def.DisplayName)
				}
				return nil
			})
		},
	}
}

func newPromptsActivateCmd(configPath *string) *cobra.Command {
	var projectID, text string
	cmd := &cobra.Command{
		Use:   "activate <key>",
		Short: "Activate a global or per-project prompt override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if text == "" {
				return fmt.Errorf("--text is required")
			}
			cfg, _, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return withPromptEnv(cmd.Context(), cfg, func(ctx context.Context, env *promptEnv) error {
				return activatePrompt(ctx, env, projectID, key, text)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project ID to scope the override to (default: global)")
	cmd.Flags().StringVar(&text, "text", "", "override prompt text")
	return cmd
}

func newPromptsResetCmd(configPath *string) *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "reset <key>",
		Short: "Deactivate an override, falling back to the next tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			cfg, _, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return withPromptEnv(cmd.Context(), cfg, func(ctx context.Context, env *promptEnv) error {
				return resetPrompt(ctx, env, projectID, key)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project ID the override was scoped to (default: global)")
	return cmd
}

// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fabianmarian8/pagewatch/internal/config"
	"github.com/fabianmarian8/pagewatch/internal/observability"
)

// contextKey scopes values stored in the command context by this package.
type contextKey string

// configKey carries the validated *config.Config from PersistentPreRunE to
// the subcommands.
const configKey contextKey = "config"

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagewatch",
		Short: "Pagewatch watches page values and reports confirmed changes.",
		Long: `Pagewatch fetches a page over plain HTTP (falling back to a headless
browser when the page demands it), extracts a value with CSS, XPath,
regex, or schema.org queries, normalizes it, and runs it through an
anti-flap state machine so only stable changes are reported.`,
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any subcommand: config first, then logging.
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// Fall back to a basic logger so the failure is still visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pagewatch"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			logger := observability.GetLogger()
			logger.Debug("Starting pagewatch",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
			)

			// Subcommands read the validated config back out of the context.
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is ./pagewatch.yaml, then ~/.pagewatch/pagewatch.yaml)")
	cmd.SetVersionTemplate(`{{printf "pagewatch %s\n" .Version}}`)

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command with a signal-aware context supplied by main.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// withConfig returns a context carrying the validated configuration.
func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// configFromCommand returns the configuration placed in the command context by
// PersistentPreRunE. Commands built standalone in tests fall back to defaults.
func configFromCommand(cmd *cobra.Command) *config.Config {
	if ctx := cmd.Context(); ctx != nil {
		if cfg, ok := ctx.Value(configKey).(*config.Config); ok && cfg != nil {
			return cfg
		}
	}
	return config.NewDefaultConfig()
}

// initializeConfig wires config file discovery and environment variables onto
// the given viper instance. Explicit --config wins; otherwise the working
// directory is searched first, then ~/.pagewatch.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pagewatch"))
		}
		v.SetConfigName("pagewatch")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

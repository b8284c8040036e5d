package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lukeburns/channeler/internal/app"
	"github.com/lukeburns/channeler/internal/config"
	"github.com/lukeburns/channeler/internal/logging"
)

var (
	home      string
	namespace string
	keyName   string
	logLevel  string

	settings config.Config
)

// Execute runs the root command.
func Execute() error {
	return newRoot().Execute()
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "channeler",
		Short:        "Channel-addressed replicated append-only logs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			if home == "" {
				dir, err := config.DefaultHome()
				if err != nil {
					return err
				}
				home = dir
			}

			cfg, err := config.Load(home)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("namespace") {
				cfg.Namespace = namespace
			}
			if cmd.Flags().Changed("key-name") {
				cfg.KeyName = keyName
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.SetLevel(cfg.LogLevel)
			settings = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "home dir (default ~/.channeler)")
	pf.StringVar(&namespace, "namespace", "", "namespace recorded with every core")
	pf.StringVar(&keyName, "key-name", "", "root key name under <home>/data/keys")
	pf.StringVar(&logLevel, "log-level", "", "trace|debug|info|warn|error")

	root.AddCommand(
		initCmd(),
		keyCmd(),
		deriveCmd(),
		appendCmd(),
		readCmd(),
		serveCmd(),
		exportCmd(),
		importCmd(),
	)
	return root
}

// withApp opens an app for the current settings, runs fn and closes it.
func withApp(cmd *cobra.Command, cfg app.Config, fn func(ctx context.Context, a *app.App) error) error {
	cfg.Settings = settings
	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Open(ctx); err != nil {
		_ = a.Close()
		return fmt.Errorf("open %s: %w", settings.Home, err)
	}
	err = fn(ctx, a)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wippyai/featurekit/config"
	"github.com/wippyai/featurekit/internal/logging"
)

// cli carries flag values and the app built for the running command.
type cli struct {
	app         *app
	packagesDir string
	logLevel    string
	metrics     bool
	dev         bool
}

// current returns the app built by the root pre-run hook.
func (c *cli) current() *app {
	return c.app
}

func (c *cli) close(ctx context.Context) {
	if c.app != nil {
		c.app.close(ctx)
		c.app = nil
	}
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "featurectl",
		Short: "Resolve and install the optional feature",
		Long: titleStyle.Render("featurectl") + `

Inspects installed packages, resolves the optional feature through the
package loader or the installed feature module, and drives the module
install flow.

Configuration comes from FEATUREKIT_* environment variables; flags
override them.

` + mutedStyle.Render("Examples:") + `
  featurectl packages list
  featurectl resolve com.example.plugin
  featurectl modules install feature
  featurectl run -i`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			c.app, err = newApp(cfg, logger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.app == nil || !c.metrics {
				return nil
			}
			return c.app.writeMetrics(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.packagesDir, "packages", "", "installed packages directory (overrides FEATUREKIT_PACKAGES_DIR)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (overrides FEATUREKIT_LOG_LEVEL)")
	flags.BoolVar(&c.dev, "dev", false, "development logging")
	flags.BoolVar(&c.metrics, "metrics", false, "print metrics to stderr on exit")

	cmd.AddCommand(
		newPackagesCmd(c.current),
		newResolveCmd(c.current),
		newModulesCmd(c.current),
		newRunCmd(c.current),
		newEnvCmd(),
	)
	return cmd
}

func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.packagesDir != "" {
		cfg.Packages.Dir = c.packagesDir
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if cmd.Flags().Changed("dev") {
		cfg.Log.Development = c.dev
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEnvCmd() *cobra.Command {
	noop := func(*cobra.Command, []string) error { return nil }
	return &cobra.Command{
		Use:                "env",
		Short:              "List the recognised environment variables",
		Args:               cobra.NoArgs,
		PersistentPreRunE:  noop,
		PersistentPostRunE: noop,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Usage(cmd.OutOrStdout())
		},
	}
}

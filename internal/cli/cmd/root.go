package cmd

import (
	"os"

	"ems3/internal/app"
	"ems3/internal/config"
	"ems3/internal/logging"

	"github.com/spf13/cobra"
)

var configPath string

var RootCmd = &cobra.Command{
	Use:           "ems3",
	Short:         "Supervisor for a fleet of game servers",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPanel(cmd.Context())
	},
}

func Execute() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: <user config dir>/ems3/config.yaml)")

	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	dir, err := config.DefaultDir()
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(dir)
}

// openContainer wires the application. Quiet keeps logs off the terminal.
func openContainer(quiet bool) (*app.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Log.Quiet = quiet

	logger, err := logging.Init(cfg.Log)
	if err != nil {
		return nil, err
	}

	c, err := app.New(cfg, logger)
	if err != nil {
		logging.Close()
		return nil, err
	}
	return c, nil
}

func closeContainer(c *app.Container) {
	if err := c.Close(); err != nil {
		c.Logger.Warn("shutdown", "err", err)
	}
	logging.Close()
}

// withContainer runs fn against a freshly wired application and tears it
// down afterwards.
func withContainer(fn func(c *app.Container) error) error {
	c, err := openContainer(true)
	if err != nil {
		return err
	}
	defer closeContainer(c)
	return fn(c)
}

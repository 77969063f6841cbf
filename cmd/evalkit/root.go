package main

import (
	"github.com/spf13/cobra"

	"github.com/datar-psa/evalkit/config"
	"github.com/datar-psa/evalkit/log"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "evalkit",
		Short:         "Evaluate language models on registered tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML config file (built-in defaults when empty)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(newRunCmd(g), newListCmd(g))
	return cmd
}

func (g *globalFlags) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	log.SetLevel(cfg.LogLevel)
	g.cfg = cfg
	return nil
}

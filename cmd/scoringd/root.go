package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "scoringd"

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "scoringd ingests voice-interview webhooks and scores finished interviews",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(opts.configFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
				return err
			}
			if err := v.BindPFlag("log.json", cmd.Root().PersistentFlags().Lookup("json")); err != nil {
				return err
			}
			opts.v = v
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	root.AddCommand(
		newServeCommand(opts),
		newRunOnceCommand(opts),
		newMigrateCommand(opts),
		newVerifySignatureCommand(opts),
	)
	return root
}

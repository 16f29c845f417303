package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/mentorwire/internal/config"
	"github.com/vovakirdan/mentorwire/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "mentorwire",
		Short:         "Real-time chat, presence and call signaling for a tutoring marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newServeCmd(opts), newTokenCmd(opts), newChatCmd(opts))
	return root
}

// load resolves configuration with CLI flags applied last.
func (o *rootOptions) load() (config.Config, error) {
	bootLogger := log.New(o.overrides.LogLevel, "")
	cfg, path, err := config.Load(bootLogger, o.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.UpdateFrom(o.overrides)
	bootLogger.Debug().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

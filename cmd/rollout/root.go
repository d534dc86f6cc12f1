package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rollout/pkg/config"
)

// flags shared by every command.
type rootFlags struct {
	output   string
	storage  string
	boltPath string
	envFile  string
}

// cli is the command tree plus the app opened for the running command.
type cli struct {
	root *cobra.Command
	app  *app
}

func newCLI(out io.Writer) *cli {
	var flags rootFlags
	c := &cli{}

	root := &cobra.Command{
		Use:   "rollout",
		Short: "Manage feature flags",
		Long: `rollout manages feature flags rolled out by percentage, user,
group and IP address, and keeps an audit log of every change.

Storage and logging are configured from the environment (ROLLOUT_*,
REDIS_*, HTTP_*), optionally read from a .env file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			c.app, err = newApp(cmd.Context(), cfg, out, flags.output)
			return err
		},
	}
	root.SetOut(out)
	root.SetVersionTemplate(fmt.Sprintf(
		"rollout version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.output, "output", "o", outputText, "Output format: text or yaml")
	pf.StringVar(&flags.storage, "storage", "", "Storage backend: memory, bolt or redis (overrides ROLLOUT_STORAGE)")
	pf.StringVar(&flags.boltPath, "bolt-path", "", "Bolt database file (overrides ROLLOUT_BOLT_PATH)")
	pf.StringVar(&flags.envFile, "env-file", "", "Read environment variables from this file first")

	// Commands receive the app lazily: it only exists once PersistentPreRunE ran.
	getApp := func() *app { return c.app }

	root.AddCommand(
		newGetCmd(getApp),
		newListCmd(getApp),
		newActivateCmd(getApp),
		newDeactivateCmd(getApp),
		newPercentageCmd(getApp),
		newMemberCmd(getApp, memberUser),
		newMemberCmd(getApp, memberGroup),
		newMemberCmd(getApp, memberIP),
		newCheckCmd(getApp),
		newEventsCmd(getApp),
		newApplyCmd(getApp),
		newServeCmd(getApp),
	)

	c.root = root
	return c
}

// Execute runs the command line and releases the app whatever the outcome.
// Cobra skips post-run hooks on failure, so cleanup cannot live there.
func (c *cli) Execute(ctx context.Context, args []string) error {
	c.root.SetArgs(args)
	err := c.root.ExecuteContext(ctx)
	if c.app != nil {
		err = errors.Join(err, c.app.Close())
		c.app = nil
	}
	return err
}

func loadConfig(cmd *cobra.Command, flags rootFlags) (config.Rollout, error) {
	if flags.envFile != "" {
		if err := config.LoadEnv(flags.envFile); err != nil {
			return config.Rollout{}, err
		}
	}

	var cfg config.Rollout
	if err := config.Load(&cfg); err != nil {
		return config.Rollout{}, err
	}

	pf := cmd.Flags()
	if pf.Changed("storage") {
		cfg.Storage = flags.storage
	}
	if pf.Changed("bolt-path") {
		cfg.BoltPath = flags.boltPath
	}
	if err := cfg.Validate(); err != nil {
		return config.Rollout{}, err
	}
	switch flags.output {
	case outputText, outputYAML:
	default:
		return config.Rollout{}, fmt.Errorf("unknown output format %q: must be %q or %q", flags.output, outputText, outputYAML)
	}
	return cfg, nil
}

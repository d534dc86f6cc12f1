package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/rollout/pkg/feature"
)

func newGetCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show the state of a feature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			f, err := a.rollout.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get feature: %w", err)
			}
			return a.printer.feature(f)
		},
	}
}

func newListCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known feature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			names, err := a.rollout.Features(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list features: %w", err)
			}

			fs := make([]*feature.Feature, 0, len(names))
			for _, name := range names {
				f, err := a.rollout.Get(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("failed to get feature %q: %w", name, err)
				}
				fs = append(fs, f)
			}
			return a.printer.features(fs)
		},
	}
}

func newActivateCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate NAME",
		Short: "Turn a feature on for everyone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			return mutateAndPrint(cmd, a, args[0], func() error {
				return a.rollout.Activate(cmd.Context(), args[0])
			})
		},
	}
}

func newDeactivateCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate NAME",
		Short: "Turn a feature off and clear all of its rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			return mutateAndPrint(cmd, a, args[0], func() error {
				return a.rollout.Deactivate(cmd.Context(), args[0])
			})
		},
	}
}

func newPercentageCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "percentage NAME PERCENT",
		Short: "Roll a feature out to a percentage of users (0 resets it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid percentage %q: %w", args[1], err)
			}
			a := getApp()
			return mutateAndPrint(cmd, a, args[0], func() error {
				if p <= 0 {
					return a.rollout.DeactivatePercentage(cmd.Context(), args[0])
				}
				return a.rollout.ActivatePercentage(cmd.Context(), args[0], p)
			})
		},
	}
}

type memberKind string

const (
	memberUser  memberKind = "user"
	memberGroup memberKind = "group"
	memberIP    memberKind = "ip"
)

// newMemberCmd builds "user|group|ip add|rm NAME VALUE".
func newMemberCmd(getApp func() *app, kind memberKind) *cobra.Command {
	parent := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Manage the %ss of a feature", kind),
	}

	add := &cobra.Command{
		Use:   "add NAME " + string(kind),
		Short: fmt.Sprintf("Add a %s to a feature", kind),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			name, value := args[0], args[1]
			return mutateAndPrint(cmd, a, name, func() error {
				ctx := cmd.Context()
				switch kind {
				case memberUser:
					return a.rollout.ActivateUserID(ctx, name, value)
				case memberGroup:
					return a.rollout.ActivateGroup(ctx, name, value)
				default:
					if !feature.ValidIP(value) {
						return fmt.Errorf("invalid ip address %q", value)
					}
					return a.rollout.ActivateIP(ctx, name, value)
				}
			})
		},
	}

	rm := &cobra.Command{
		Use:     "rm NAME " + string(kind),
		Aliases: []string{"remove"},
		Short:   fmt.Sprintf("Remove a %s from a feature", kind),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			name, value := args[0], args[1]
			return mutateAndPrint(cmd, a, name, func() error {
				ctx := cmd.Context()
				switch kind {
				case memberUser:
					return a.rollout.DeactivateUserID(ctx, name, value)
				case memberGroup:
					return a.rollout.DeactivateGroup(ctx, name, value)
				default:
					return a.rollout.DeactivateIP(ctx, name, value)
				}
			})
		},
	}

	parent.AddCommand(add, rm)
	return parent
}

func newCheckCmd(getApp func() *app) *cobra.Command {
	var user, ip string

	cmd := &cobra.Command{
		Use:   "check NAME",
		Short: "Check whether a feature is active for a user or an IP address",
		Long: `Check whether a feature is active for a user or an IP address.
Without --user or --ip the check is anonymous, which only passes at 100%.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			name := args[0]

			var (
				active  bool
				err     error
				subject = "anonymous"
			)
			switch {
			case ip != "":
				subject = "ip " + ip
				active, err = a.rollout.IsActiveIP(cmd.Context(), name, ip)
			case user != "":
				subject = "user " + user
				active, err = a.rollout.IsActive(cmd.Context(), name, feature.UserID(user))
			default:
				active, err = a.rollout.IsActive(cmd.Context(), name, nil)
			}
			if err != nil {
				return fmt.Errorf("failed to check feature: %w", err)
			}
			return a.printer.active(name, subject, active)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User identifier")
	cmd.Flags().StringVar(&ip, "ip", "", "IP address")
	cmd.MarkFlagsMutuallyExclusive("user", "ip")
	return cmd
}

func newEventsCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events NAME",
		Short: "Show the audit log of a feature, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			events, err := a.rollout.EventLog().Events(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read events: %w", err)
			}
			return a.printer.events(events)
		},
	}
}

// mutateAndPrint runs fn and prints the resulting state of the feature.
func mutateAndPrint(cmd *cobra.Command, a *app, name string, fn func() error) error {
	if err := fn(); err != nil {
		return fmt.Errorf("failed to update feature: %w", err)
	}
	f, err := a.rollout.Get(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("failed to get feature: %w", err)
	}
	return a.printer.feature(f)
}

package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/rollout"
)

// manifest is the declarative file read by "rollout apply".
type manifest struct {
	Features []feature.Feature `yaml:"features"`
}

func newApplyCmd(getApp func() *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply feature states from a YAML file",
		Long: `Apply feature states from a YAML file. Every listed feature is
replaced by the declared state; features not listed are left alone.

Example file:

  features:
    - name: chat
      percentage: 20
      users: ["1", "2"]
      groups: [admins]
      ips: [10.0.0.1]

Examples:
  rollout apply -f features.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			var m manifest
			if err := yaml.Unmarshal(data, &m); err != nil {
				return fmt.Errorf("failed to parse YAML: %w", err)
			}

			a := getApp()
			for _, declared := range m.Features {
				if err := applyFeature(cmd, a, declared); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file to apply (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func applyFeature(cmd *cobra.Command, a *app, declared feature.Feature) error {
	for _, m := range slices.Concat(declared.Users, declared.Groups) {
		if !feature.ValidMember(m) {
			return fmt.Errorf("feature %q: %w: %q", declared.Name, rollout.ErrInvalidMember, m)
		}
	}
	for _, ip := range declared.IPs {
		if !feature.ValidIP(ip) {
			return fmt.Errorf("feature %q: invalid ip address %q", declared.Name, ip)
		}
	}
	percentage := min(max(declared.Percentage, 0), 100)

	err := a.rollout.Set(cmd.Context(), declared.Name, func(f *feature.Feature) {
		f.Clear()
		f.SetPercentage(percentage)
		for _, u := range declared.Users {
			f.AddUserID(u)
		}
		for _, g := range declared.Groups {
			f.AddGroup(g)
		}
		for _, ip := range declared.IPs {
			f.AddIP(ip)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to apply feature %q: %w", declared.Name, err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "✓ Feature applied: %s\n", declared.Name)
	return err
}

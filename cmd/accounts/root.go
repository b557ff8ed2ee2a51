// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
)

// serviceName identifies this process in logs and health checks.
const serviceName = "accounts"

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
	getenv     func(string) string
}

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{getenv: os.Getenv})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "User accounts service",
		Long: `accounts is an HTTP service for user registration, password login,
and stateless bearer-token sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (YAML)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(opts, nil))
	cmd.AddCommand(newMigrateCmd(opts, nil))
	cmd.AddCommand(newSeedCmd(opts, nil))
	cmd.AddCommand(newStatusCmd(opts, nil))
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// loadConfig reads the config file and the flags set on cmd.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	getenv := o.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	//nolint:wrapcheck // config errors are already coded
	return config.Load(o.configFile, cmd.Flags(), getenv)
}

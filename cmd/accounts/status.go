// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/control"
)

// statusTimeout bounds a control server query.
const statusTimeout = 2 * time.Second

// ProcessStatus holds the status information for the service.
type ProcessStatus struct {
	Component string `json:"component"`
	Addr      string `json:"addr"`
	Running   bool   `json:"running"`
	Health    string `json:"health,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// StatusDeps contains injectable dependencies for the status command.
type StatusDeps struct {
	// Query asks a control server for a service's health.
	// Default: control.QueryStatus
	Query func(ctx context.Context, addr, service string) (string, error)
}

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd(opts *rootOptions, deps *StatusDeps) *cobra.Command {
	cfg := &statusConfig{}
	if deps == nil {
		deps = &StatusDeps{}
	}
	if deps.Query == nil {
		deps.Query = control.QueryStatus
	}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running accounts service",
		Long:  `Query the control gRPC health server of a running accounts service.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runStatus(cmd, appCfg.Control.Addr, cfg, deps)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, addr string, cfg *statusConfig, deps *StatusDeps) error {
	if addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("control address is empty; set --control-addr")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, statusTimeout)
	defer cancel()

	status := queryProcessStatus(ctx, addr, deps.Query)

	if cfg.jsonOutput {
		output, err := formatStatusJSON(status)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), formatStatusTable(status))
	return nil
}

// queryProcessStatus asks the control server at addr for the service health.
func queryProcessStatus(ctx context.Context, addr string, query func(ctx context.Context, addr, service string) (string, error)) ProcessStatus {
	status := ProcessStatus{Component: serviceName, Addr: addr}

	health, err := query(ctx, addr, serviceName)
	if err != nil {
		status.Error = fmt.Sprintf("failed to query: %v", err)
		return status
	}
	status.Running = true
	status.Health = health
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ProcessStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROCESS\tADDR\tSTATUS\tHEALTH")
	_, _ = fmt.Fprintln(w, "-------\t----\t------\t------")
	if status.Running {
		_, _ = fmt.Fprintf(w, "%s\t%s\trunning\t%s\n", status.Component, status.Addr, status.Health)
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\tstopped\t%s\n", status.Component, status.Addr, reason)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ProcessStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", oops.With("operation", "marshal status").Wrap(err)
	}
	return string(data), nil
}

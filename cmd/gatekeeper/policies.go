package main

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"examforge/gatekeeper/pkg/cli"
	"examforge/gatekeeper/pkg/limits/ratelimit"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the rate limit policies",
	Long: `List every named rate limit policy with its limit, window and penalty block.

Examples:
  gatekeeper policies
  gatekeeper policies -o json`,
	Args: cobra.NoArgs,
	RunE: listPolicies,
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}

type policyView struct {
	Name          string `json:"name"`
	Limit         int64  `json:"limit"`
	WindowSeconds int64  `json:"window_seconds"`
	BlockSeconds  int64  `json:"block_seconds,omitempty"`
}

type policyTable []policyView

func (t policyTable) Header() []string {
	return []string{"NAME", "LIMIT", "WINDOW", "BLOCK"}
}

func (t policyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		block := "-"
		if p.BlockSeconds > 0 {
			block = cli.FormatDuration(seconds(p.BlockSeconds))
		}
		rows = append(rows, []string{
			p.Name,
			strconv.FormatInt(p.Limit, 10),
			cli.FormatDuration(seconds(p.WindowSeconds)),
			block,
		})
	}
	return rows
}

func listPolicies(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}

	policies := ratelimit.Policies()
	table := make(policyTable, 0, len(policies))
	for _, p := range policies {
		table = append(table, policyView{
			Name:          p.Name,
			Limit:         p.Limit,
			WindowSeconds: int64(p.Window.Seconds()),
			BlockSeconds:  int64(p.Block.Seconds()),
		})
	}

	return f.FormatTo(cmd.OutOrStdout(), table)
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

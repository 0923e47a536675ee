package main

import (
	"fmt"

	"github.com/ChamsBouzaiene/gitsandbox/internal/config"
	"github.com/ChamsBouzaiene/gitsandbox/internal/workspace"
	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Remove sandboxes left behind by servers that did not shut down cleanly",
	Long: `reap removes every sandbox the state database still lists as live and
every prefix-matching directory older than --max-age.

Run it while no server is using the same state database: every registry
entry it finds belongs to another process.

The age sweep covers every prefix-matching directory under the sandbox base
directory, including those of servers using a different state database.
A running server refreshes its sandbox on each reaper tick, so it is skipped
as long as that server runs with the reaper enabled. Give servers that run
without a reaper their own SANDBOX_PREFIX or SANDBOX_BASE_DIR.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := prepareRuntimeEnv(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		reaper := workspace.NewReaper(workspace.ReaperOptions{
			BaseDir: env.cfg.SandboxBaseDir(),
			Prefix:  env.cfg.Sandbox.Prefix,
			MaxAge:  env.cfg.Reaper.MaxAge,
			Ledger:  env.registry(),
			Logger:  env.logger,
		})
		n, err := reaper.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d sandbox(es)\n", n)
		return nil
	},
}

func init() {
	reapCmd.Flags().Duration("max-age", config.DefaultReaperMaxAge, "Remove prefix-matching directories older than this (0 disables)")
}

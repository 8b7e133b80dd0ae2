// Command x07 is the thin CLI facade: a cobra
// rootCmd wiring each facade verb straight into the L0–L7 library
// packages this module builds. The CLI itself carries no domain logic —
// every verb below is a few lines of flag-plumbing around
// internal/{ast,resolve,types,emit,ccbuild,runner,pkgmgr,testharness}.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/cliconfig"
	"j5.dev/x07/pkg/proxy/policy"
)

var rootCmd = &cobra.Command{
	Use:   "x07",
	Short: "The x07 deterministic toolchain: compile, run, and package x07 programs",
}

func init() {
	// Registering the rule types a run-os-policy document may name, so
	// policy.Policy.UnmarshalJSON can dispatch a "ruleType" tag to a
	// concrete Rule.
	policy.RegisterRule("URLMatchRule", func() policy.Rule { return &policy.URLMatchRule{} })

	if cfg, err := cliconfig.Load(); err == nil {
		switch cfg.Color {
		case "always":
			color.NoColor = false
		case "never":
			color.NoColor = true
		}
	}

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(bundleCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(astCmd)
	rootCmd.AddCommand(pkgCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

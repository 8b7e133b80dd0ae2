package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/testharness"
)

var (
	testJSON bool
)

var testCmd = &cobra.Command{
	Use:   "test <manifest.yaml>",
	Short: "Run an x07test.manifest.yaml test suite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := testharness.LoadManifest(args[0])
		if err != nil {
			return err
		}
		h, err := testharness.NewHarness(manifest)
		if err != nil {
			return err
		}
		defer h.Close()

		report, err := h.Run(cmd.Context(), manifest)
		if err != nil {
			return err
		}
		if testJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		for _, id := range report.Passed {
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("PASS")+" "+id)
		}
		for _, f := range report.Failed {
			fmt.Fprintln(cmd.OutOrStdout(), color.RedString("FAIL")+" "+f.ID+": "+f.Reason)
		}
		summary := fmt.Sprintf("%d/%d passed", len(report.Passed), report.Total)
		if len(report.Failed) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString(summary))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.RedString(summary))
		return fmt.Errorf("x07 test: %d case(s) failed", len(report.Failed))
	},
}

func init() {
	testCmd.Flags().BoolVar(&testJSON, "json", false, "emit the x07test@0.1.0 report as JSON instead of a colorized summary")
}

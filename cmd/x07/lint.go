package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/types"
)

var (
	lintWorkspace string
	lintWorld     string
	lintCaps      []string
)

var lintCmd = &cobra.Command{
	Use:   "lint <program.x07.json>",
	Short: "Type-check a program and emit its x07diag@0.1.0 diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := loadBuildContext(lintWorkspace, args[0])
		if err != nil {
			return err
		}
		doc, ok := bc.typeCheck(types.World(lintWorld), lintCaps)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return err
		}
		if !ok {
			cmd.SilenceUsage = true
			return errors.New("x07 lint: type check failed")
		}
		return nil
	},
}

func init() {
	lintCmd.Flags().StringVar(&lintWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	lintCmd.Flags().StringVar(&lintWorld, "world", string(types.WorldSolvePure), "world to check against (affects which capabilities are denied)")
	lintCmd.Flags().StringSliceVar(&lintCaps, "cap", nil, "extra capability to grant beyond the world's default (ffi, unsafe)")
}

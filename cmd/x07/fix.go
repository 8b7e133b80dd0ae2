package main

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/types"
)

var (
	fixWorkspace string
	fixWorld     string
)

// fixCmd applies every lint diagnostic's suggested_patch in order, the
// same RFC 6902 patch engine `x07 ast apply-patch` exposes directly.
// Diagnostics without a suggested patch are left for a human; fix only
// ever applies what the checker already knows how to repair.
var fixCmd = &cobra.Command{
	Use:   "fix <program.x07.json>",
	Short: "Apply every lint diagnostic's suggested patch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := loadBuildContext(fixWorkspace, args[0])
		if err != nil {
			return err
		}
		doc, _ := bc.typeCheck(types.World(fixWorld), nil)

		prog := bc.entry
		applied := 0
		for _, e := range allEntries(doc) {
			if len(e.Patch) == 0 {
				continue
			}
			patchJSON, err := json.Marshal(e.Patch)
			if err != nil {
				return errors.Wrap(err, "x07: marshalling suggested patch")
			}
			next, err := ast.ApplyPatch(prog, patchJSON)
			if err != nil {
				return errors.Wrapf(err, "x07: applying suggested patch for %s", e.Code)
			}
			prog = next
			applied++
		}
		if applied == 0 {
			cmd.Println("no fixable diagnostics")
			return nil
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, ast.Canonicalize(prog), "", "  "); err != nil {
			return err
		}
		pretty.WriteByte('\n')
		if err := os.WriteFile(args[0], pretty.Bytes(), 0o644); err != nil {
			return err
		}
		cmd.Printf("applied %d patch(es)\n", applied)
		return nil
	},
}

func allEntries(doc *diag.Document) []diag.Entry {
	all := make([]diag.Entry, 0, len(doc.Errors)+len(doc.Warnings)+len(doc.Notes))
	all = append(all, doc.Errors...)
	all = append(all, doc.Warnings...)
	all = append(all, doc.Notes...)
	return all
}

func init() {
	fixCmd.Flags().StringVar(&fixWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	fixCmd.Flags().StringVar(&fixWorld, "world", string(types.WorldSolvePure), "world to check against while collecting fixes")
}

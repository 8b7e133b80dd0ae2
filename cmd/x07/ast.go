package main

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"j5.dev/x07/internal/ast"
)

var astCmd = &cobra.Command{
	Use:   "ast",
	Short: "Inspect and transform x07AST program files directly",
}

var astCanonCmd = &cobra.Command{
	Use:   "canon <program.x07.json>",
	Short: "Print a program's canonical encoding (compact, sorted keys)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		prog, err := ast.Parse(data)
		if err != nil {
			return err
		}
		cmd.Println(string(ast.Canonicalize(prog)))
		return nil
	},
}

var astApplyPatchPath string

var astApplyPatchCmd = &cobra.Command{
	Use:   "apply-patch <program.x07.json> --patch <patch.json>",
	Short: "Apply an RFC 6902 patch to a program and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		prog, err := ast.Parse(data)
		if err != nil {
			return err
		}
		patchData, err := os.ReadFile(astApplyPatchPath)
		if err != nil {
			return err
		}
		next, err := ast.ApplyPatch(prog, patchData)
		if err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, ast.Canonicalize(next), "", "  "); err != nil {
			return err
		}
		pretty.WriteByte('\n')
		cmd.Print(pretty.String())
		return nil
	},
}

func init() {
	astApplyPatchCmd.Flags().StringVar(&astApplyPatchPath, "patch", "", "path to a JSON file holding an RFC 6902 ops array")
	astCmd.AddCommand(astCanonCmd)
	astCmd.AddCommand(astApplyPatchCmd)
}

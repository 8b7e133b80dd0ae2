package main

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/ast"
)

var fmtCheck bool

// fmtCmd reformats a program file to its canonical, pretty-printed form.
// internal/ast.Canonicalize already guarantees parse(canonicalize(p)) ==
// p; fmt just re-indents that compact canonical
// encoding rather than writing compact JSON back to a source file a
// human is expected to read and diff.
var fmtCmd = &cobra.Command{
	Use:   "fmt <program.x07.json>",
	Short: "Rewrite a program file to its canonical, indented form",
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
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, ast.Canonicalize(prog), "", "  "); err != nil {
			return errors.Wrap(err, "x07: indenting canonical form")
		}
		pretty.WriteByte('\n')
		if fmtCheck {
			if pretty.String() != string(data) {
				return errors.Errorf("x07 fmt: %s is not canonically formatted", args[0])
			}
			return nil
		}
		return os.WriteFile(args[0], pretty.Bytes(), 0o644)
	},
}

func init() {
	fmtCmd.Flags().BoolVar(&fmtCheck, "check", false, "exit non-zero instead of rewriting if the file isn't canonically formatted")
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/billyx"
	"j5.dev/x07/internal/pkgmgr"
	"j5.dev/x07/internal/types"
)

var (
	bundleWorkspace string
	bundleWorld     string
	bundleProfile   string
	bundleOut       string
)

// bundleCmd builds a program and packs the resulting binary plus the
// program's own x07AST source into a deterministic tar.zst — the
// same x07pkg.tar.zst archive format, here produced
// directly from a single program rather than from a resolved dependency
// graph (that's `x07 pkg publish`'s job; `bundle` is the standalone,
// registry-free equivalent a CI step can run without a registry at all).
var bundleCmd = &cobra.Command{
	Use:   "bundle <program.x07.json>",
	Short: "Compile a program and pack it into a deterministic x07pkg.tar.zst archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := parseProfile(bundleProfile)
		if err != nil {
			return err
		}
		bc, err := loadBuildContext(bundleWorkspace, args[0])
		if err != nil {
			return err
		}
		stageDir, err := os.MkdirTemp("", "x07bundle-")
		if err != nil {
			return errors.Wrap(err, "x07: creating staging dir")
		}
		defer os.RemoveAll(stageDir)

		outcome, doc, err := bc.compile(cmd.Context(), types.World(bundleWorld), profile, nil, stageDir, bc.entry.ModuleID)
		if err != nil {
			printDiagnostics(doc)
			return err
		}
		programData, err := os.ReadFile(filepath.Join(bundleWorkspace, args[0]))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(stageDir, "program.x07.json"), programData, 0o644); err != nil {
			return err
		}
		_ = outcome // binary already lives under stageDir, packed below

		// Carry the program's own module directory along with the
		// compiled binary, so a bundle stays independently verifiable
		// (re-emit and re-compile, then diff) without needing the
		// originating workspace around.
		moduleDir := filepath.Dir(filepath.Join(bundleWorkspace, args[0]))
		srcDst := filepath.Join(stageDir, "src")
		if err := os.MkdirAll(srcDst, 0o755); err != nil {
			return err
		}
		if err := billyx.CopyFS(osfs.New(srcDst), osfs.New(moduleDir)); err != nil {
			return errors.Wrap(err, "x07: copying module sources into bundle")
		}

		fsys := osfs.New(stageDir)
		archive, err := pkgmgr.Pack(fsys, "/")
		if err != nil {
			return errors.Wrap(err, "x07: packing bundle")
		}
		out := bundleOut
		if out == "" {
			out = bc.entry.ModuleID + ".x07pkg.tar.zst"
		}
		if err := os.WriteFile(out, archive, 0o644); err != nil {
			return errors.Wrap(err, "x07: writing bundle archive")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(archive))
		return nil
	},
}

func init() {
	bundleCmd.Flags().StringVar(&bundleWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	bundleCmd.Flags().StringVar(&bundleWorld, "world", string(types.WorldSolvePure), "capability-scoped world to compile for")
	bundleCmd.Flags().StringVar(&bundleProfile, "profile", "release", "build profile: release or debug")
	bundleCmd.Flags().StringVar(&bundleOut, "out", "", "bundle archive path (defaults to <module_id>.x07pkg.tar.zst)")
}

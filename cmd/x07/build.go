package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"j5.dev/x07/internal/ccbuild"
	"j5.dev/x07/internal/types"
)

var (
	buildWorkspace string
	buildWorld     string
	buildProfile   string
	buildOutDir    string
	buildOutName   string
	buildCaps      []string
)

var buildCmd = &cobra.Command{
	Use:   "build <program.x07.json>",
	Short: "Type-check, emit, and compile a program for one world",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := parseProfile(buildProfile)
		if err != nil {
			return err
		}
		bc, err := loadBuildContext(buildWorkspace, args[0])
		if err != nil {
			return err
		}
		outName := buildOutName
		if outName == "" {
			outName = bc.entry.ModuleID
		}
		outcome, doc, err := bc.compile(cmd.Context(), types.World(buildWorld), profile, buildCaps, buildOutDir, outName)
		if err != nil {
			printDiagnostics(doc)
			return err
		}
		manifest := ccbuild.NewDeterminismManifest(outcome.Options, outcome.SourceSHA256, outcome.Result)
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", manifest.Canonicalize())
		fmt.Fprintf(cmd.ErrOrStderr(), "built %s (sha256 %s)\n", outcome.Result.BinaryPath, outcome.Result.SHA256)
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	buildCmd.Flags().StringVar(&buildWorld, "world", string(types.WorldSolvePure), "capability-scoped world to compile for")
	buildCmd.Flags().StringVar(&buildProfile, "profile", "release", "build profile: release or debug")
	buildCmd.Flags().StringVar(&buildOutDir, "out-dir", "target", "directory the binary is written into")
	buildCmd.Flags().StringVar(&buildOutName, "out-name", "", "binary name (defaults to the program's module id)")
	buildCmd.Flags().StringSliceVar(&buildCaps, "cap", nil, "extra capability to grant beyond the world's default (ffi, unsafe)")
}

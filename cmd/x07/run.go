package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/runner"
	"j5.dev/x07/internal/types"
	"j5.dev/x07/pkg/proxy/policy"
)

var (
	runWorkspace string
	runWorld     string
	runProfile   string
	runInputPath string
	runPolicy    string
	runFixture   string
	runTimeout   time.Duration
	runCaps      []string
	runFuelLimit uint64
	runMemCap    uint64
)

var runCmd = &cobra.Command{
	Use:   "run <program.x07.json>",
	Short: "Compile (if needed) and execute a program under one world",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := parseProfile(runProfile)
		if err != nil {
			return err
		}
		world := types.World(runWorld)
		bc, err := loadBuildContext(runWorkspace, args[0])
		if err != nil {
			return err
		}
		workDir, err := os.MkdirTemp("", "x07run-")
		if err != nil {
			return errors.Wrap(err, "x07: creating scratch dir")
		}
		defer os.RemoveAll(workDir)

		outcome, doc, err := bc.compile(cmd.Context(), world, profile, runCaps, workDir, "program")
		if err != nil {
			printDiagnostics(doc)
			return err
		}

		input, err := readInput(runInputPath)
		if err != nil {
			return err
		}

		var in runner.WorldInputs
		if runFixture != "" {
			in.FSFixture = osfs.New(runFixture)
		}
		if runPolicy != "" {
			pol, err := loadPolicy(runPolicy)
			if err != nil {
				return err
			}
			in.NetPolicy = pol
		}
		rep, err := runner.RunWorld(cmd.Context(), world, outcome.Result.BinaryPath, input, runner.Options{
			Timeout:   runTimeout,
			Timestamp: time.Now().Unix(),
			FuelLimit: runFuelLimit,
			MemCap:    runMemCap,
		}, in)
		if err != nil {
			return errors.Wrap(err, "x07: running compiled binary")
		}
		cmd.OutOrStdout().Write(rep.Stdout)
		if rep.Stderr != "" {
			fmt.Fprint(cmd.ErrOrStderr(), rep.Stderr)
		}
		if rep.HardLimitTriggered {
			return errors.Errorf("x07: program exited %d [%s]", rep.ExitCode, diag.HardLimit)
		}
		if rep.ExitCode != 0 {
			if code, ok := runner.TrapCode(rep.Stderr); ok {
				return errors.Errorf("x07: program exited %d [%s]", rep.ExitCode, code)
			}
			return errors.Errorf("x07: program exited %d", rep.ExitCode)
		}
		return nil
	},
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func loadPolicy(path string) (*policy.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "x07: reading policy %q", path)
	}
	var pol policy.Policy
	if err := pol.UnmarshalJSON(data); err != nil {
		return nil, errors.Wrapf(err, "x07: parsing policy %q", path)
	}
	return &pol, nil
}

func init() {
	runCmd.Flags().StringVar(&runWorkspace, "workspace", ".", "workspace root containing x07.workspace.json")
	runCmd.Flags().StringVar(&runWorld, "world", string(types.WorldSolvePure), "capability-scoped world to run under")
	runCmd.Flags().StringVar(&runProfile, "profile", "release", "build profile: release or debug")
	runCmd.Flags().StringVar(&runInputPath, "input", "-", "path to the stdin payload, or - to read stdin")
	runCmd.Flags().StringVar(&runPolicy, "policy", "", "path to a run-os-policy@0.1.0 document (run-os-sandboxed)")
	runCmd.Flags().StringVar(&runFixture, "fixture", "", "directory staged as the world's filesystem root (solve-fs)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "wall-clock timeout for the run")
	runCmd.Flags().StringSliceVar(&runCaps, "cap", nil, "extra capability to grant beyond the world's default (ffi, unsafe)")
	runCmd.Flags().Uint64Var(&runFuelLimit, "fuel-limit", 0, "override the binary's default fuel budget (0 keeps the compiled-in default)")
	runCmd.Flags().Uint64Var(&runMemCap, "mem-cap", 0, "override the binary's X07_MEM_CAP heap capacity in bytes (0 keeps the 64MiB default)")
}

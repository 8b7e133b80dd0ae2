package runner

import (
	"context"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"

	"j5.dev/x07/internal/types"
	"j5.dev/x07/pkg/proxy/policy"
)

// WorldInputs gathers the world-specific resources RunWorld may need to
// stage before exec'ing the binary. Not every world uses every field —
// solve-fs wants FSFixture, run-os-sandboxed wants NetPolicy, the rest
// want neither.
type WorldInputs struct {
	FSFixture  billy.Filesystem
	NetPolicy  *policy.Policy
}

// RunWorld stages whatever capability w grants beyond the deterministic
// baseline, runs the binary, and tears the staged capability back down
// before returning — so a caller never needs to know which worlds stage
// anything and which don't.
// defaultHardLimits are the rlimit backstop used as a last resort for
// run-os* worlds: generous enough that a well-behaved program
// never approaches them, tight enough to eventually kill one that runs
// away through an ffi/unsafe capability grant the binary's own
// X07_MEM_CAP/fuel accounting can't see.
const (
	defaultHardAddressSpace = 2 << 30 // 2 GiB
	defaultHardCPUSeconds   = 300
)

func RunWorld(ctx context.Context, w types.World, binaryPath string, input []byte, opt Options, in WorldInputs) (Report, error) {
	opt.BinaryPath = binaryPath
	opt.Input = input

	switch w {
	case types.WorldRunOS, types.WorldRunOSSandboxed:
		if opt.MaxAddressSpace == 0 {
			opt.MaxAddressSpace = defaultHardAddressSpace
		}
		if opt.MaxCPUSeconds == 0 {
			opt.MaxCPUSeconds = defaultHardCPUSeconds
		}
	}

	switch w {
	case types.WorldSolveFS:
		if in.FSFixture == nil {
			return Report{}, errors.New("runner: solve-fs world requires a FSFixture")
		}
		root, cleanup, err := StageFS(in.FSFixture)
		if err != nil {
			return Report{}, err
		}
		defer cleanup()
		opt.FSRoot = root

	case types.WorldRunOSSandboxed:
		if in.NetPolicy == nil {
			return Report{}, errors.New("runner: run-os-sandboxed world requires a NetPolicy")
		}
		addr, cleanup, err := StartNetworkPolicy(in.NetPolicy)
		if err != nil {
			return Report{}, err
		}
		defer cleanup()
		opt.ProxyAddr = addr
	}

	return Run(ctx, w, opt)
}

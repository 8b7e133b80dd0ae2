package testharness

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/ccbuild"
	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/emit"
	"j5.dev/x07/internal/resolve"
	"j5.dev/x07/internal/runner"
	"j5.dev/x07/internal/syncx"
	"j5.dev/x07/internal/types"
	"j5.dev/x07/pkg/proxy/policy"
)

// schemaVersion is the x07test report's schema tag.
const schemaVersion = "x07test@0.1.0"

// Report is the harness's top-level output: `{schema, total, passed[],
// failed[]}`, emitted to stdout under --json and rendered as a summary
// otherwise (see cmd/x07's `test` verb).
type Report struct {
	Schema string       `json:"schema"`
	Total  int          `json:"total"`
	Passed []string     `json:"passed"`
	Failed []FailedCase `json:"failed"`
}

// FailedCase is one entry of Report.Failed: the case id, a short reason,
// and whatever diagnostics or run report best explain the failure.
type FailedCase struct {
	ID          string         `json:"id"`
	Reason      string         `json:"reason"`
	Diagnostics *diag.Document `json:"diagnostics,omitempty"`
	Report      *runner.Report `json:"report,omitempty"`
}

// compileKey identifies one (world, capability-grant) combination against
// the manifest's own program — the unit "compiles the program once per
// manifest unless flags differ" memoizes over. Two
// cases sharing a key reuse the same compiled binary.
type compileKey struct {
	world types.World
	caps  string // sorted, comma-joined capability names
}

type compileResult struct {
	binaryPath string
	doc        *diag.Document
	ok         bool
}

// compileOnce guards one compileKey's compileProgram call so concurrent
// cases sharing a key block on the same compile instead of racing to
// emit and build the same binary twice.
type compileOnce struct {
	once   sync.Once
	result *compileResult
	err    error
}

// Harness runs one manifest's cases against a loaded workspace, memoizing
// compiles of the manifest's own program across cases that share a
// compileKey, and cleaning up every staged binary/temp dir on Close.
// Cases in a manifest are independent of each other (each names its own
// world, input, and expectation), so Run fans them out across a bounded
// worker pool; compiles is a syncx.Map rather than a plain map because
// two cases that share a (world, caps) key can now reach compileCached
// concurrently.
type Harness struct {
	ws      *resolve.Workspace
	entry   *ast.Program
	modules map[string]*ast.Program
	baseDir string
	workDir string
	profile ccbuild.Profile

	compiles syncx.Map[compileKey, *compileOnce]
	seq      atomic.Int64
}

// NewHarness loads the workspace at m.WorkspaceRoot, parses m.Program as
// the entry module, and resolves its module graph — work done once,
// shared across every case in the manifest.
func NewHarness(m *Manifest) (*Harness, error) {
	wsfs := osfs.New("/")
	ws, err := resolve.LoadWorkspace(wsfs, m.WorkspaceRoot)
	if err != nil {
		return nil, errors.Wrap(err, "testharness: loading workspace")
	}
	entry, modules, err := loadProgram(ws, m.WorkspaceRoot, m.Program)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "x07test-")
	if err != nil {
		return nil, errors.Wrap(err, "testharness: creating scratch dir")
	}

	return &Harness{
		ws:      ws,
		entry:   entry,
		modules: modules,
		baseDir: m.WorkspaceRoot,
		workDir: workDir,
		profile: m.Profile,
	}, nil
}

// loadProgram parses program (a path relative to baseDir) and resolves
// its transitive module graph against ws.
func loadProgram(ws *resolve.Workspace, baseDir, program string) (*ast.Program, map[string]*ast.Program, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, program))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "testharness: reading program %q", program)
	}
	entry, err := ast.Parse(data)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "testharness: parsing program %q", program)
	}
	graph, err := ws.Resolve(entry)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "testharness: resolving %q", program)
	}
	modules := make(map[string]*ast.Program, len(graph.Modules))
	for id, mod := range graph.Modules {
		modules[id] = mod.Program
	}
	return entry, modules, nil
}

// Close removes every scratch directory created for compiled binaries.
func (h *Harness) Close() error {
	return os.RemoveAll(h.workDir)
}

// Run executes every case in m, compiling as needed, and returns the
// x07test report. It returns an error only when the harness itself could
// not proceed (a malformed manifest, an unreadable workspace, a compiler
// invocation failure on an already type-checked program) — case-level
// failures always land in Report.Failed instead.
func (h *Harness) Run(ctx context.Context, m *Manifest) (*Report, error) {
	type outcome struct {
		failure *FailedCase
		err     error
	}
	outcomes := make([]outcome, len(m.Cases))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(m.Cases) {
		workers = len(m.Cases)
	}
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				failure, err := h.runCase(ctx, m.Cases[i])
				outcomes[i] = outcome{failure: failure, err: err}
			}
		}()
	}
	for i := range m.Cases {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report := &Report{Schema: schemaVersion, Total: len(m.Cases)}
	for i, c := range m.Cases {
		if outcomes[i].err != nil {
			return nil, outcomes[i].err
		}
		if outcomes[i].failure != nil {
			report.Failed = append(report.Failed, *outcomes[i].failure)
			continue
		}
		report.Passed = append(report.Passed, c.ID)
	}
	return report, nil
}

func (h *Harness) runCase(ctx context.Context, c Case) (*FailedCase, error) {
	world := types.World(c.World)
	comp, err := h.compileCached(ctx, world, c.Caps)
	if err != nil {
		return nil, err
	}
	if !comp.ok {
		return &FailedCase{ID: c.ID, Reason: "type check failed", Diagnostics: comp.doc}, nil
	}

	input, err := c.Input.Resolve(h.baseDir)
	if err != nil {
		return nil, err
	}

	rep, err := h.execute(ctx, world, comp.binaryPath, input, c.Policy, c.Fixture)
	if err != nil {
		return &FailedCase{ID: c.ID, Reason: err.Error()}, nil
	}
	if rep.ExitCode != 0 {
		return &FailedCase{ID: c.ID, Reason: "non-zero exit", Report: &rep}, nil
	}

	ok, reason, err := h.checkExpected(ctx, c, rep)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &FailedCase{ID: c.ID, Reason: reason, Report: &rep}, nil
	}
	return nil, nil
}

// compileCached compiles h.entry/h.modules for (world, caps), reusing any
// prior compile with the same key. When two cases sharing a key reach
// this concurrently, LoadOrStore hands both the same *compileOnce and
// sync.Once ensures only one of them actually calls compileProgram.
func (h *Harness) compileCached(ctx context.Context, world types.World, caps []string) (*compileResult, error) {
	key := compileKey{world: world, caps: strings.Join(sortedCopy(caps), ",")}
	entry, _ := h.compiles.LoadOrStore(key, &compileOnce{})
	entry.once.Do(func() {
		name := fmt.Sprintf("case-%d", h.seq.Add(1))
		entry.result, entry.err = h.compileProgram(ctx, h.entry, h.modules, world, caps, name)
	})
	return entry.result, entry.err
}

// compileProgram type-checks every module in the graph, and on success
// emits and compiles C source, writing the binary under h.workDir/name.
func (h *Harness) compileProgram(ctx context.Context, entry *ast.Program, modules map[string]*ast.Program, world types.World, capNames []string, name string) (*compileResult, error) {
	checker := types.NewChecker(world, modules)
	if len(capNames) > 0 {
		caps := types.Capabilities{}
		for _, capName := range capNames {
			caps[types.Capability(capName)] = true
		}
		checker.Caps = caps
	}

	ids := make([]string, 0, len(modules))
	for id := range modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ok := true
	for _, id := range ids {
		if !checker.CheckModule(modules[id]) {
			ok = false
		}
	}
	if !ok {
		return &compileResult{doc: checker.Doc, ok: false}, nil
	}

	emitter := emit.NewEmitter(world, entry, modules)
	src, err := emitter.Emit()
	if err != nil {
		return nil, errors.Wrap(err, "testharness: emitting C source")
	}
	cPath := filepath.Join(h.workDir, name+".c")
	if err := os.WriteFile(cPath, []byte(src), 0o644); err != nil {
		return nil, errors.Wrap(err, "testharness: writing emitted source")
	}
	result, err := ccbuild.Build(ctx, ccbuild.Options{
		Profile:    h.profile,
		SourcePath: cPath,
		OutputDir:  h.workDir,
		OutputName: name,
	})
	if err != nil {
		return nil, errors.Wrap(err, "testharness: compiling emitted source")
	}
	return &compileResult{binaryPath: result.BinaryPath, doc: checker.Doc, ok: true}, nil
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

// execute runs binaryPath under world, staging a FSFixture from
// fixtureDir (workspace-relative) for solve-fs and a NetPolicy for
// run-os-sandboxed, per internal/runner.RunWorld's per-world staging.
func (h *Harness) execute(ctx context.Context, world types.World, binaryPath string, input []byte, pol *policy.Policy, fixtureDir string) (runner.Report, error) {
	var in runner.WorldInputs
	if fixtureDir != "" {
		in.FSFixture = osfs.New(filepath.Join(h.baseDir, fixtureDir))
	}
	if pol != nil {
		in.NetPolicy = pol
	}
	opt := runner.Options{Timeout: 30 * time.Second, Timestamp: time.Now().Unix()}
	return runner.RunWorld(ctx, world, binaryPath, input, opt, in)
}

// checkExpected compares rep against c.Expected, compiling and running a
// reference oracle program for the program_output variant.
func (h *Harness) checkExpected(ctx context.Context, c Case, rep runner.Report) (bool, string, error) {
	switch {
	case c.Expected.SHA256 != "":
		sum := sha256.Sum256(rep.Stdout)
		got := hex.EncodeToString(sum[:])
		if got != c.Expected.SHA256 {
			return false, fmt.Sprintf("stdout sha256 = %s, want %s", got, c.Expected.SHA256), nil
		}
		return true, "", nil

	case c.Expected.ProgramOutput != nil:
		want, err := h.runReference(ctx, c, c.Expected.ProgramOutput)
		if err != nil {
			return false, "", err
		}
		if !bytes.Equal(rep.Stdout, want) {
			return false, "stdout did not match reference program's output", nil
		}
		return true, "", nil

	default:
		if !bytes.Equal(rep.Stdout, c.Expected.Bytes) {
			return false, "stdout did not match expected bytes", nil
		}
		return true, "", nil
	}
}

// runReference compiles and runs ref.Program (a second entry module in
// the same workspace), defaulting its world and input to the enclosing
// case's own, and returns its stdout.
func (h *Harness) runReference(ctx context.Context, c Case, ref *ReferenceProgram) ([]byte, error) {
	entry, modules, err := loadProgram(h.ws, h.baseDir, ref.Program)
	if err != nil {
		return nil, err
	}
	world := types.World(ref.World)
	if world == "" {
		world = types.World(c.World)
	}
	cr, err := h.compileProgram(ctx, entry, modules, world, nil, fmt.Sprintf("ref-%d", h.seq.Add(1)))
	if err != nil {
		return nil, err
	}
	if !cr.ok {
		return nil, errors.Errorf("testharness: reference program %q failed its own type check", ref.Program)
	}

	input := c.Input
	if ref.Input != nil {
		input = *ref.Input
	}
	data, err := input.Resolve(h.baseDir)
	if err != nil {
		return nil, err
	}
	rep, err := h.execute(ctx, world, cr.binaryPath, data, c.Policy, c.Fixture)
	if err != nil {
		return nil, err
	}
	if rep.ExitCode != 0 {
		return nil, errors.Errorf("testharness: reference program %q exited non-zero", ref.Program)
	}
	return rep.Stdout, nil
}

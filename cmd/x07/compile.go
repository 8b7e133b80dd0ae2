package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"j5.dev/x07/internal/ast"
	"j5.dev/x07/internal/ccbuild"
	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/emit"
	"j5.dev/x07/internal/resolve"
	"j5.dev/x07/internal/types"
)

// buildContext holds the workspace-loading work every compiling verb
// (build, run, bundle, lint, fix) shares — load once, compile as
// many times as the command needs.
type buildContext struct {
	ws      *resolve.Workspace
	entry   *ast.Program
	modules map[string]*ast.Program
	baseDir string
}

func loadBuildContext(workspaceRoot, program string) (*buildContext, error) {
	ws, err := resolve.LoadWorkspace(osfs.New("/"), workspaceRoot)
	if err != nil {
		return nil, errors.Wrap(err, "x07: loading workspace")
	}
	data, err := os.ReadFile(filepath.Join(workspaceRoot, program))
	if err != nil {
		return nil, errors.Wrapf(err, "x07: reading program %q", program)
	}
	entry, err := ast.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "x07: parsing program %q", program)
	}
	graph, err := ws.Resolve(entry)
	if err != nil {
		return nil, errors.Wrapf(err, "x07: resolving %q", program)
	}
	modules := make(map[string]*ast.Program, len(graph.Modules))
	for id, mod := range graph.Modules {
		modules[id] = mod.Program
	}
	return &buildContext{ws: ws, entry: entry, modules: modules, baseDir: workspaceRoot}, nil
}

// typeCheck runs the L2 checker over every module in the graph, returning
// the combined diagnostics document and whether every module passed.
func (bc *buildContext) typeCheck(world types.World, capNames []string) (*diag.Document, bool) {
	checker := types.NewChecker(world, bc.modules)
	if len(capNames) > 0 {
		caps := types.Capabilities{}
		for _, name := range capNames {
			caps[types.Capability(name)] = true
		}
		checker.Caps = caps
	}
	ids := make([]string, 0, len(bc.modules))
	for id := range bc.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ok := true
	for _, id := range ids {
		if !checker.CheckModule(bc.modules[id]) {
			ok = false
		}
	}
	return checker.Doc, ok
}

// compileOutcome bundles a successful compile's artifacts: the ccbuild
// result plus the emitted C source's own digest, which
// ccbuild.NewDeterminismManifest wants as SourceSHA256.
type compileOutcome struct {
	Result       ccbuild.Result
	SourceSHA256 string
	Options      ccbuild.Options
}

// compile type-checks and, on success, emits and compiles C source,
// writing the binary to outDir/outName.
func (bc *buildContext) compile(ctx context.Context, world types.World, profile ccbuild.Profile, capNames []string, outDir, outName string) (compileOutcome, *diag.Document, error) {
	doc, ok := bc.typeCheck(world, capNames)
	if !ok {
		return compileOutcome{}, doc, errors.New("x07: type check failed")
	}
	emitter := emit.NewEmitter(world, bc.entry, bc.modules)
	src, err := emitter.Emit()
	if err != nil {
		return compileOutcome{}, doc, errors.Wrap(err, "x07: emitting C source")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return compileOutcome{}, doc, errors.Wrap(err, "x07: creating output directory")
	}
	cPath := filepath.Join(outDir, outName+".c")
	if err := os.WriteFile(cPath, []byte(src), 0o644); err != nil {
		return compileOutcome{}, doc, errors.Wrap(err, "x07: writing emitted source")
	}
	opt := ccbuild.Options{
		Profile:    profile,
		SourcePath: cPath,
		OutputDir:  outDir,
		OutputName: outName,
	}
	result, err := ccbuild.Build(ctx, opt)
	if err != nil {
		return compileOutcome{}, doc, errors.Wrap(err, "x07: compiling emitted source")
	}
	sum := sha256.Sum256([]byte(src))
	return compileOutcome{Result: result, SourceSHA256: hex.EncodeToString(sum[:]), Options: opt}, doc, nil
}

func parseProfile(s string) (ccbuild.Profile, error) {
	switch s {
	case "", "release":
		return ccbuild.Release, nil
	case "debug":
		return ccbuild.Debug, nil
	default:
		return "", errors.Errorf("x07: unknown profile %q (want release or debug)", s)
	}
}

func printDiagnostics(doc *diag.Document) {
	for _, e := range doc.Errors {
		fmt.Fprintf(os.Stderr, "error[%s]: %s (%s)\n", e.Code, e.Message, e.Path)
	}
	for _, e := range doc.Warnings {
		fmt.Fprintf(os.Stderr, "warning[%s]: %s (%s)\n", e.Code, e.Message, e.Path)
	}
}

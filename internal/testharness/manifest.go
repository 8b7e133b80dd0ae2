// Package testharness is the L7 layer: a manifest-driven runner that
// compiles and runs x07 programs across the worlds named in each test
// case, then emits a strict x07test report. Manifests are authored
// in YAML (gopkg.in/yaml.v3) and normalized internally to the canonical
// case list, the same "YAML in, canonical JSON semantics out" shape the
// teacher uses for rebuild strategy files.
package testharness

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"j5.dev/x07/internal/ccbuild"
	"j5.dev/x07/pkg/proxy/policy"
)

// Registering the rule types a case's policy document may name, so
// policy.Policy.UnmarshalJSON can dispatch a "ruleType" tag to a concrete
// Rule.
func init() {
	policy.RegisterRule("URLMatchRule", func() policy.Rule { return &policy.URLMatchRule{} })
}

// Manifest is one x07test.manifest.yaml document: a single program
// compiled once per (world, profile) combination it exercises, run
// against every listed case.
type Manifest struct {
	// Program is the workspace-relative path to the entry module's
	// x07AST JSON file.
	Program string `yaml:"program"`
	// WorkspaceRoot is the filesystem path LoadWorkspace resolves
	// Program's imports against. Defaults to the manifest's own
	// directory when empty.
	WorkspaceRoot string `yaml:"workspace_root,omitempty"`
	// Profile selects the ccbuild profile ("release" or "debug") every
	// case in this manifest compiles under. Defaults to release.
	Profile ccbuild.Profile `yaml:"profile,omitempty"`
	Cases   []Case          `yaml:"cases"`
}

// Case is one manifest entry:
// `{id, world, input: bytes|path, expected: bytes|sha256|program_output, policy?, caps?}`.
type Case struct {
	ID       string   `yaml:"id"`
	World    string   `yaml:"world"`
	Input    Input    `yaml:"input"`
	Expected Expected `yaml:"expected"`
	Policy   *policy.Policy
	// Caps lists capability names ("ffi", "unsafe") this case's
	// compilation is granted beyond World's default, for cases that
	// exercise capability-denial diagnostics themselves. Empty means
	// "use the world's default grant".
	Caps []string `yaml:"caps,omitempty"`
	// Fixture, for solve-fs cases, names a workspace-relative directory
	// staged read-only as the world's filesystem root. How a harness
	// supplies solve-fs's fixture is otherwise unspecified; this is the
	// harness's own extension, not a wire-format addition.
	Fixture string `yaml:"fixture,omitempty"`

	policyNode *yaml.Node
}

// Input is the case's stdin payload, given either inline (base64-decoded
// by yaml.v3's native []byte support) or as a path to a file holding the
// raw bytes, resolved relative to the manifest's directory.
type Input struct {
	Bytes []byte `yaml:"bytes,omitempty"`
	Path  string `yaml:"path,omitempty"`
}

// Resolve returns the input's bytes, reading Path if Bytes wasn't given
// inline.
func (in Input) Resolve(baseDir string) ([]byte, error) {
	if in.Path == "" {
		return in.Bytes, nil
	}
	data, err := os.ReadFile(filepath.Join(baseDir, in.Path))
	if err != nil {
		return nil, errors.Wrapf(err, "testharness: reading input %q", in.Path)
	}
	return data, nil
}

// ReferenceProgram names a second program to run as the expected-output
// oracle, for the "program_output" expectation variant. World and Input
// default to the enclosing case's own when left empty.
type ReferenceProgram struct {
	Program string `yaml:"program"`
	World   string `yaml:"world,omitempty"`
	Input   *Input `yaml:"input,omitempty"`
}

// Expected is the case's pass/fail oracle: exactly one of Bytes, SHA256,
// or ProgramOutput should be set.
type Expected struct {
	Bytes         []byte            `yaml:"bytes,omitempty"`
	SHA256        string            `yaml:"sha256,omitempty"`
	ProgramOutput *ReferenceProgram `yaml:"program_output,omitempty"`
}

// UnmarshalYAML captures Case's policy sub-document as a raw node rather
// than decoding it directly — policy.Policy only implements
// json.Unmarshaler (it dispatches on a registered rule-type tag), so
// decodePolicy re-encodes the node to JSON and feeds it through that
// existing unmarshaler instead of duplicating its rule-registry dispatch
// in YAML.
func (c *Case) UnmarshalYAML(value *yaml.Node) error {
	type rawCase struct {
		ID       string    `yaml:"id"`
		World    string    `yaml:"world"`
		Input    Input     `yaml:"input"`
		Expected Expected  `yaml:"expected"`
		Policy   yaml.Node `yaml:"policy"`
		Caps     []string  `yaml:"caps,omitempty"`
		Fixture  string    `yaml:"fixture,omitempty"`
	}
	var raw rawCase
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.World = raw.World
	c.Input = raw.Input
	c.Expected = raw.Expected
	c.Caps = raw.Caps
	c.Fixture = raw.Fixture
	if raw.Policy.Kind != 0 {
		node := raw.Policy
		c.policyNode = &node
	}
	return nil
}

func (c *Case) resolvePolicy() error {
	if c.policyNode == nil {
		return nil
	}
	var body any
	if err := c.policyNode.Decode(&body); err != nil {
		return errors.Wrapf(err, "testharness: decoding policy for case %q", c.ID)
	}
	wrapped, err := json.Marshal(map[string]any{"policy": body})
	if err != nil {
		return err
	}
	var pol policy.Policy
	if err := pol.UnmarshalJSON(wrapped); err != nil {
		return errors.Wrapf(err, "testharness: parsing policy for case %q", c.ID)
	}
	c.Policy = &pol
	return nil
}

// LoadManifest reads and parses a manifest file, resolving every case's
// policy sub-document. The returned Manifest's WorkspaceRoot defaults to
// the manifest's own directory when the document left it empty.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "testharness: reading manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "testharness: parsing manifest")
	}
	if m.WorkspaceRoot == "" {
		m.WorkspaceRoot = filepath.Dir(path)
	}
	if m.Profile == "" {
		m.Profile = ccbuild.Release
	}
	for i := range m.Cases {
		if err := m.Cases[i].resolvePolicy(); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// decodeBase64IfString is a small helper manifests can use when authoring
// Input.Bytes from a YAML string scalar rather than yaml.v3's native
// `!!binary` tag — yaml.v3 decodes `!!binary` scalars into []byte
// automatically, so this only matters for hand-written base64 strings
// under a plain `bytes:` key typed as a string rather than tagged binary.
func decodeBase64IfString(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

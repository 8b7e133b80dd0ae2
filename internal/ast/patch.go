package ast

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/diag"
)

const (
	maxPatchBytes = 64 * 1024
	maxPatchOps   = 128
)

// Op is one RFC 6902 JSON Patch operation.
type Op struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ApplyPatch applies a sequence of RFC 6902 operations to p, returning a new
// Program. Only add/remove/replace/test are supported; any other op, a
// patch over 64 KiB, or one with more than 128 ops is a hard error. add and
// remove operate on object members only: an add or remove whose parent is
// an array returns an error.
func ApplyPatch(p *Program, patch []byte) (*Program, error) {
	if len(patch) > maxPatchBytes {
		return nil, errors.Errorf("patch exceeds %d bytes", maxPatchBytes)
	}
	var ops []Op
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.UseNumber()
	if err := dec.Decode(&ops); err != nil {
		return nil, &ParseError{Code: diag.JSONParse, Err: errors.Wrap(err, "decoding patch")}
	}
	if len(ops) > maxPatchOps {
		return nil, errors.Errorf("patch has %d ops, exceeds limit of %d", len(ops), maxPatchOps)
	}

	// Re-derive a generic JSON tree from the canonical encoding so the
	// patch operates on exactly the document Canonicalize would produce,
	// not on some other serialization of the same Program.
	var doc any
	dd := json.NewDecoder(bytes.NewReader(Canonicalize(p)))
	dd.UseNumber()
	if err := dd.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "internal: re-decoding canonical form")
	}

	for i, op := range ops {
		var err error
		switch op.Op {
		case "add":
			doc, err = patchAdd(doc, op.Path, op.Value)
		case "remove":
			doc, err = patchRemove(doc, op.Path)
		case "replace":
			doc, err = patchReplace(doc, op.Path, op.Value)
		case "test":
			err = patchTest(doc, op.Path, op.Value)
		default:
			err = errors.Errorf("unsupported patch op %q", op.Op)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "patch op %d (%s %s)", i, op.Op, op.Path)
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling patched document")
	}
	return Parse(out)
}

func splitPointer(ptr string) ([]string, error) {
	if ptr == "" {
		return nil, nil
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil, errors.Errorf("invalid JSON pointer %q", ptr)
	}
	parts := strings.Split(ptr[1:], "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts, nil
}

func navigate(doc any, tokens []string) (any, error) {
	cur := doc
	for _, tok := range tokens {
		switch v := cur.(type) {
		case map[string]any:
			child, ok := v[tok]
			if !ok {
				return nil, errors.Errorf("no such member %q", tok)
			}
			cur = child
		case []any:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, errors.Errorf("invalid array index %q", tok)
			}
			cur = v[idx]
		default:
			return nil, errors.Errorf("cannot descend into scalar at %q", tok)
		}
	}
	return cur, nil
}

// setAt mutates doc (returning a possibly-new root) by applying fn to the
// parent container addressed by all but the last pointer token.
func setAt(doc any, ptr string, fn func(parent any, lastTok string) (any, error)) (any, error) {
	tokens, err := splitPointer(ptr)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return fn(nil, "")
	}
	parentTokens, lastTok := tokens[:len(tokens)-1], tokens[len(tokens)-1]
	if len(parentTokens) == 0 {
		return fn(doc, lastTok)
	}
	// The root is not rebuilt: maps/slices obtained from navigate share
	// backing storage with doc, so mutating the parent container in place
	// is sufficient as map/slice values are reference types.
	parent, err := navigate(doc, parentTokens)
	if err != nil {
		return nil, err
	}
	if _, err := fn(parent, lastTok); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing \"value\"")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func patchAdd(doc any, ptr string, raw json.RawMessage) (any, error) {
	val, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	if ptr == "" {
		return val, nil
	}
	return setAt(doc, ptr, func(parent any, tok string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			p[tok] = val
			return nil, nil
		case []any:
			if tok == "-" {
				return nil, errors.New("append via '-' not supported in a root-replacing add")
			}
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx > len(p) {
				return nil, errors.Errorf("invalid array index %q", tok)
			}
			return nil, errors.New("array insertion requires root rebuild")
		default:
			return nil, errors.Errorf("cannot add into scalar parent")
		}
	})
}

func patchRemove(doc any, ptr string) (any, error) {
	return setAt(doc, ptr, func(parent any, tok string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			if _, ok := p[tok]; !ok {
				return nil, errors.Errorf("no such member %q", tok)
			}
			delete(p, tok)
			return nil, nil
		default:
			return nil, errors.New("remove from array requires root rebuild")
		}
	})
}

func patchReplace(doc any, ptr string, raw json.RawMessage) (any, error) {
	val, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	if ptr == "" {
		return val, nil
	}
	return setAt(doc, ptr, func(parent any, tok string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			if _, ok := p[tok]; !ok {
				return nil, errors.Errorf("no such member %q", tok)
			}
			p[tok] = val
			return nil, nil
		case []any:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(p) {
				return nil, errors.Errorf("invalid array index %q", tok)
			}
			p[idx] = val
			return nil, nil
		default:
			return nil, errors.New("cannot replace into scalar parent")
		}
	})
}

func patchTest(doc any, ptr string, raw json.RawMessage) error {
	want, err := decodeValue(raw)
	if err != nil {
		return err
	}
	tokens, err := splitPointer(ptr)
	if err != nil {
		return err
	}
	got, err := navigate(doc, tokens)
	if err != nil {
		return err
	}
	gb, _ := json.Marshal(got)
	wb, _ := json.Marshal(want)
	if string(gb) != string(wb) {
		return errors.Errorf("test failed at %q: %s != %s", ptr, gb, wb)
	}
	return nil
}

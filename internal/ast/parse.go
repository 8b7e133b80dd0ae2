package ast

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/diag"
)

// ParseError carries a diag.Code alongside the underlying cause so callers
// can route failures straight into a diag.Document without re-classifying
// a generic error string.
type ParseError struct {
	Code diag.Code
	Path string
	Err  error
}

func (e *ParseError) Error() string { return e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

func fail(code diag.Code, path string, format string, args ...any) error {
	return &ParseError{Code: code, Path: path, Err: errors.Errorf(format, args...)}
}

// wireProgram mirrors the on-wire object shape for the top-level module
// document. Field validation happens in Parse, not here, so every accepted
// or rejected shape funnels through one place.
type wireProgram struct {
	SchemaVersion string          `json:"schema_version"`
	ModuleID      string          `json:"module_id"`
	Imports       []string        `json:"imports"`
	StdlibVersion string          `json:"stdlib_version"`
	Decls         []wireDecl      `json:"decls"`
	Solve         json.RawMessage `json:"solve"`
}

type wireParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type wireDecl struct {
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	Params     []wireParam     `json:"params"`
	Result     string          `json:"result"`
	Body       json.RawMessage `json:"body"`
	ABI        string          `json:"abi"`
	ExternName string          `json:"extern_name"`
	Export     bool            `json:"export"`
}

// knownTypes is the closed type surface. It's checked
// here (rather than deferred entirely to L2) because a BAD_TYPE_NAME on a
// declaration signature is a parse/schema-level failure, not a type-flow
// failure.
var knownTypes = map[string]bool{
	"i32": true, "bool": true,
	"bytes": true, "bytes_view": true, "vec_u8": true,
	"option<i32>": true, "option<bytes>": true,
	"result<i32,i32>": true, "result<bytes,i32>": true,
	"iface": true,
	"ptr_const_u8": true, "ptr_mut_u8": true,
	"ptr_const_void": true, "ptr_mut_void": true,
	"ptr_const_i32": true, "ptr_mut_i32": true,
}

// Parse decodes and validates a raw x07AST document, returning
// diag.Code-tagged errors (JSON_PARSE, SCHEMA_VIOLATION, UNKNOWN_HEAD,
// ARITY_MISMATCH, BAD_TYPE_NAME) on failure.
func Parse(data []byte) (*Program, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireProgram
	if err := dec.Decode(&w); err != nil {
		return nil, fail(diag.JSONParse, "", "%s", err)
	}
	if w.SchemaVersion != SchemaVersion && w.SchemaVersion != legacySchemaVersion {
		return nil, fail(diag.SchemaViolation, "/schema_version", "unsupported schema_version %q", w.SchemaVersion)
	}
	if w.ModuleID == "" {
		return nil, fail(diag.SchemaViolation, "/module_id", "module_id must not be empty")
	}
	p := &Program{
		SchemaVersion: SchemaVersion,
		ModuleID:      w.ModuleID,
		Imports:       w.Imports,
		StdlibVersion: w.StdlibVersion,
	}
	for i, wd := range w.Decls {
		d, err := parseDecl(wd, i)
		if err != nil {
			return nil, err
		}
		p.Decls = append(p.Decls, d)
	}
	if len(w.Solve) > 0 {
		e, err := parseExpr(w.Solve, "/solve")
		if err != nil {
			return nil, err
		}
		p.Solve = &e
	}
	return p, nil
}

func parseDecl(wd wireDecl, idx int) (Decl, error) {
	path := jptr("/decls", idx)
	d := Decl{Name: wd.Name, Result: wd.Result, ABI: wd.ABI, ExternName: wd.ExternName, Export: wd.Export}
	switch wd.Kind {
	case "defn":
		d.Kind = DeclDefn
	case "defasync":
		d.Kind = DeclDefasync
	case "extern":
		d.Kind = DeclExtern
	default:
		return Decl{}, fail(diag.SchemaViolation, path, "unknown decl kind %q", wd.Kind)
	}
	if wd.Name == "" {
		return Decl{}, fail(diag.SchemaViolation, path+"/name", "decl name must not be empty")
	}
	for _, wp := range wd.Params {
		if !knownTypes[wp.Type] && !isRawPointerType(wp.Type) {
			return Decl{}, fail(diag.BadTypeName, path, "unrecognized parameter type %q", wp.Type)
		}
		d.Params = append(d.Params, Param{Name: wp.Name, Type: wp.Type})
	}
	if d.Result != "" && !knownTypes[d.Result] && !isRawPointerType(d.Result) {
		return Decl{}, fail(diag.BadTypeName, path, "unrecognized result type %q", d.Result)
	}
	if d.Kind == DeclExtern {
		if d.ABI != "C" {
			return Decl{}, fail(diag.SchemaViolation, path+"/abi", "extern abi must be \"C\", got %q", d.ABI)
		}
		return d, nil
	}
	if len(wd.Body) == 0 {
		return Decl{}, fail(diag.SchemaViolation, path+"/body", "defn/defasync requires a body")
	}
	body, err := parseExpr(wd.Body, path+"/body")
	if err != nil {
		return Decl{}, err
	}
	d.Body = &body
	return d, nil
}

func isRawPointerType(t string) bool {
	switch t {
	case "ptr_const_u8", "ptr_mut_u8", "ptr_const_void", "ptr_mut_void", "ptr_const_i32", "ptr_mut_i32":
		return true
	}
	return false
}

// parseExpr decodes one JSON-sexpr node: an array (call), an object with a
// single "b64" key (byte literal), a JSON number (int literal), or a JSON
// string (variable reference).
func parseExpr(data []byte, path string) (Expr, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Expr{}, fail(diag.SchemaViolation, path, "empty expression")
	}
	switch data[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return Expr{}, fail(diag.JSONParse, path, "%s", err)
		}
		if len(raw) == 0 {
			return Expr{}, fail(diag.SchemaViolation, path, "expression array must have a head")
		}
		var head string
		if err := json.Unmarshal(raw[0], &head); err != nil {
			return Expr{}, fail(diag.UnknownHead, path+"/0", "expression head must be a string")
		}
		e := Expr{Kind: ExprCall, Head: head}
		for i, a := range raw[1:] {
			sub, err := parseExpr(a, jptr(path, i+1))
			if err != nil {
				return Expr{}, err
			}
			e.Args = append(e.Args, sub)
		}
		if err := checkArity(head, len(e.Args), path); err != nil {
			return Expr{}, err
		}
		return e, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return Expr{}, fail(diag.JSONParse, path, "%s", err)
		}
		b64, ok := obj["b64"]
		if !ok || len(obj) != 1 {
			return Expr{}, fail(diag.SchemaViolation, path, "byte-literal object must contain exactly one \"b64\" field")
		}
		var s string
		if err := json.Unmarshal(b64, &s); err != nil {
			return Expr{}, fail(diag.JSONParse, path, "%s", err)
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Expr{}, fail(diag.SchemaViolation, path, "invalid base64 byte literal: %s", err)
		}
		return Expr{Kind: ExprBytes, Bytes: raw}, nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Expr{}, fail(diag.JSONParse, path, "%s", err)
		}
		return Expr{Kind: ExprVar, Var: s}, nil
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return Expr{}, fail(diag.SchemaViolation, path, "unrecognized expression leaf: %s", data)
		}
		n, err := strconv.ParseInt(num.String(), 10, 64)
		if err != nil {
			return Expr{}, fail(diag.SchemaViolation, path, "integer literal out of range: %s", num.String())
		}
		if n < -2147483648 || n > 2147483647 {
			return Expr{}, fail(diag.BadTypeName, path, "integer literal %s out of i32 range", num.String())
		}
		return Expr{Kind: ExprInt, Int: n}, nil
	}
}

func jptr(prefix string, idx int) string {
	return prefix + "/" + strconv.Itoa(idx)
}

// checkArity validates the builtin table's arity for heads it recognizes.
// Heads outside the closed table at this layer are deferred to L1/L2 (a
// user-defined function call), since the closed builtin table isn't fully
// known until stdlib modules are resolved; only the small set of
// control-flow forms with fixed arity are checked eagerly here.
func checkArity(head string, nargs int, path string) error {
	want, ok := fixedArity[head]
	if !ok {
		return nil
	}
	if nargs != want {
		return fail(diag.ArityMismatch, path, "%q expects %d argument(s), got %d", head, want, nargs)
	}
	return nil
}

var fixedArity = map[string]int{
	"if":             3,
	"try":            1,
	"let":            2,
	"bytes.view":     1,
	"bytes.subview":  3,
	"vec_u8.as_view": 1,
	"bytes.len":      1,
	"task.yield":     0,
	"task.sleep":     1,
	"task.cancel":    1,
	"task.join.bytes": 1,
}

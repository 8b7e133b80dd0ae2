// Package types implements the L2 type, ownership, and borrow checker: it
// walks the parsed x07AST (internal/ast) of a resolved module graph,
// enforces the closed type surface, tracks moves and
// lexical borrows, and gates capability-requiring constructs by world.
package types

// Type is one member of the closed type surface. Values are interned to
// the constants below; ast.Parse rejects any other parameter or result
// type name with BAD_TYPE_NAME already, so by the time a Type reaches this
// package it is always one of these.
type Type string

const (
	I32   Type = "i32"
	Bool  Type = "bool"
	Bytes Type = "bytes"
	View  Type = "bytes_view"
	Vec   Type = "vec_u8"
	Iface Type = "iface"
	Chan  Type = "chan_bytes"

	OptionI32   Type = "option<i32>"
	OptionBytes Type = "option<bytes>"
	ResultI32   Type = "result<i32,i32>"
	ResultBytes Type = "result<bytes,i32>"

	PtrConstU8   Type = "ptr_const_u8"
	PtrMutU8     Type = "ptr_mut_u8"
	PtrConstVoid Type = "ptr_const_void"
	PtrMutVoid   Type = "ptr_mut_void"
	PtrConstI32  Type = "ptr_const_i32"
	PtrMutI32    Type = "ptr_mut_i32"
)

// IsOwning reports whether a value of this type is moved (rather than
// copied) on assignment, let-binding, or function call.
func (t Type) IsOwning() bool {
	return t == Bytes || t == Vec
}

// IsRawPointer reports whether t is one of the six standalone-only raw
// pointer types.
func (t Type) IsRawPointer() bool {
	switch t {
	case PtrConstU8, PtrMutU8, PtrConstVoid, PtrMutVoid, PtrConstI32, PtrMutI32:
		return true
	}
	return false
}

// World is a capability-scoped execution environment.
type World string

const (
	WorldSolvePure       World = "solve-pure"
	WorldSolveFS         World = "solve-fs"
	WorldSolveRR         World = "solve-rr"
	WorldSolveKV         World = "solve-kv"
	WorldSolveFull       World = "solve-full"
	WorldRunOS           World = "run-os"
	WorldRunOSSandboxed  World = "run-os-sandboxed"
)

// IsStandalone reports whether w is one of the two worlds that may carry
// the ffi capability.
func (w World) IsStandalone() bool {
	return w == WorldRunOS || w == WorldRunOSSandboxed
}

// IsDeterministic reports whether w is one of the five worlds barred from
// wall-clock, unseeded RNG, network, and unordered filesystem access.
func (w World) IsDeterministic() bool {
	return !w.IsStandalone()
}

// Capability is a named grant a world either carries or doesn't.
type Capability string

const (
	CapFFI    Capability = "ffi"
	CapUnsafe Capability = "unsafe"
)

// Capabilities is the capability set granted to a compilation for a given
// world; v1 models "ffi" and "unsafe", which both standalone worlds carry
// unconditionally. The checker consults only "ffi".
type Capabilities map[Capability]bool

// DefaultCapabilities returns the capability set a world grants by
// default.
func DefaultCapabilities(w World) Capabilities {
	if w.IsStandalone() {
		return Capabilities{CapFFI: true, CapUnsafe: true}
	}
	return Capabilities{}
}

func (c Capabilities) Has(cap Capability) bool { return c != nil && c[cap] }

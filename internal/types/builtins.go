package types

// Signature is a builtin's static type, independent of the
// move/borrow/capability effects the checker applies around it (those are
// handled specially per head in checker.go, since they aren't expressible
// as a plain arg-types-to-result-type table).
type Signature struct {
	Params []Type
	Result Type
}

// builtins is the closed, checker-known subset of the builtin table.
// Heads outside this table that also aren't one of the special
// control-flow/borrow/async forms handled in checker.go fail with
// UNKNOWN_BUILTIN — the closed builtin table is versioned by
// stdlib_lock_sha256, and growing it further than the
// surface this repo's tests exercise is out of scope.
var builtins = map[string]Signature{
	"i32.add":     {[]Type{I32, I32}, I32},
	"i32.sub":     {[]Type{I32, I32}, I32},
	"i32.mul":     {[]Type{I32, I32}, I32},
	"i32.div":     {[]Type{I32, I32}, I32},
	"i32.mod":     {[]Type{I32, I32}, I32},
	"i32.cmp_eq":  {[]Type{I32, I32}, Bool},
	"i32.cmp_ge":  {[]Type{I32, I32}, Bool},
	"i32.cmp_le":  {[]Type{I32, I32}, Bool},
	"i32.cmp_gt":  {[]Type{I32, I32}, Bool},
	"i32.cmp_lt":  {[]Type{I32, I32}, Bool},
	"i32.and":     {[]Type{Bool, Bool}, Bool},
	"i32.or":      {[]Type{Bool, Bool}, Bool},
	"i32.not":     {[]Type{Bool}, Bool},

	"bytes.len":    {[]Type{View}, I32},
	"cmp_range":    {[]Type{View, View}, I32},
	"view.to_bytes": {[]Type{View}, Bytes},
	"vec_u8.len":   {[]Type{View}, I32},
	"vec_u8.push":  {[]Type{Vec, I32}, Vec},

	"task.yield":      {nil, I32},
	"task.sleep":      {[]Type{I32}, I32},
	"task.cancel":     {[]Type{I32}, I32},
	"task.join.bytes": {[]Type{I32}, ResultBytes},

	"chan.bytes": {[]Type{I32}, Chan},
	"chan.send":  {[]Type{Chan, Bytes}, I32},
	"chan.recv":  {[]Type{Chan}, ResultBytes},
	"chan.close": {[]Type{Chan}, I32},

	"fs.read": {[]Type{View}, ResultBytes},

	"ptr.deref_i32":  {[]Type{PtrConstI32}, I32},
	"ptr.store_i32":  {[]Type{PtrMutI32, I32}, I32},
}

// worldGatedBuiltins names heads whose availability depends on the
// compiling world beyond the standalone-only ffi gate — fs.read only
// type-checks in a world that actually stages a filesystem fixture.
var worldGatedBuiltins = map[string][]World{
	"fs.read": {WorldSolveFS, WorldSolveFull},
}

// WorldGate exposes worldGatedBuiltins: ok is false for heads with no
// world restriction beyond the closed builtin table itself.
func WorldGate(head string) ([]World, bool) {
	worlds, ok := worldGatedBuiltins[head]
	return worlds, ok
}

// consumingBuiltinArgs names (head, arg index) pairs where a builtin other
// than a user-declared function consumes an owning argument outright.
// internal/emit still must not double-own the argument once it has been
// handed to the builtin's runtime call, so it tracks this set itself
// rather than relying on the checker.
var consumingBuiltinArgs = map[string][]int{
	"chan.send":   {1},
	"vec_u8.push": {0},
}

// ConsumesArg reports whether head takes ownership of the argument at i.
func ConsumesArg(head string, i int) bool {
	for _, idx := range consumingBuiltinArgs[head] {
		if idx == i {
			return true
		}
	}
	return false
}

// viewBuiltins names the three borrow-introducing heads. Each borrows its first
// argument; bytes.view/bytes.subview borrow a `bytes` owner, vec_u8.as_view
// borrows a `vec_u8` owner.
var viewBuiltins = map[string]Type{
	"bytes.view":    Bytes,
	"bytes.subview": Bytes,
	"vec_u8.as_view": Vec,
}

// mutatingBuiltins names heads that require their first (owning) argument
// to carry zero live borrows, beyond the move checks every owning-typed use
// already gets. vec_u8.push is the only one in the builtin table above;
// kept as a distinct set so adding another mutator later is one line here,
// not a change to checkCall's dispatch.
var mutatingBuiltins = map[string]bool{
	"vec_u8.push": true,
}

// unsafeBuiltins names heads that require the {run-os, run-os-sandboxed}
// + ffi gate.
var unsafeBuiltins = map[string]bool{
	"ptr.deref_i32": true,
	"ptr.store_i32": true,
}

// BuiltinSignature exposes the closed builtin table to other packages
// (internal/emit re-derives an already-checked expression's static type
// without re-running the full checker).
func BuiltinSignature(head string) (Signature, bool) {
	sig, ok := builtins[head]
	return sig, ok
}

// ViewBuiltinOwnerType exposes viewBuiltins for the same reason.
func ViewBuiltinOwnerType(head string) (Type, bool) {
	t, ok := viewBuiltins[head]
	return t, ok
}

// IsMutatingBuiltin exposes mutatingBuiltins.
func IsMutatingBuiltin(head string) bool { return mutatingBuiltins[head] }

// IsUnsafeBuiltin exposes unsafeBuiltins.
func IsUnsafeBuiltin(head string) bool { return unsafeBuiltins[head] }

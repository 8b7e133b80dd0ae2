package emit

import "j5.dev/x07/internal/types"

// cType maps a checked x07 Type to the C type the runtime preamble
// declares for it. The closed type surface (internal/types.Type) has
// exactly the members below; ctype.go is the one place that needs
// updating if that surface ever grows.
func cType(t types.Type) string {
	switch t {
	case types.I32:
		return "int32_t"
	case types.Bool:
		return "int32_t"
	case types.Bytes:
		return "x07_bytes_t"
	case types.View:
		return "x07_view_t"
	case types.Vec:
		return "x07_vec_t"
	case types.Iface:
		return "void *"
	case types.Chan:
		return "x07_chan_t *"
	case types.OptionI32:
		return "x07_option_i32_t"
	case types.OptionBytes:
		return "x07_option_bytes_t"
	case types.ResultI32:
		return "x07_result_i32_t"
	case types.ResultBytes:
		return "x07_result_bytes_t"
	case types.PtrConstU8:
		return "const uint8_t *"
	case types.PtrMutU8:
		return "uint8_t *"
	case types.PtrConstVoid:
		return "const void *"
	case types.PtrMutVoid:
		return "void *"
	case types.PtrConstI32:
		return "const int32_t *"
	case types.PtrMutI32:
		return "int32_t *"
	default:
		return "int32_t"
	}
}

// tagTypedefs are the four generic option<_>/result<_,i32> instantiations
// the closed type surface requires.
const tagTypedefs = `
typedef struct { int32_t is_some; int32_t value; } x07_option_i32_t;
typedef struct { int32_t is_some; x07_bytes_t value; } x07_option_bytes_t;
typedef struct { int32_t is_ok; int32_t ok; int32_t err; } x07_result_i32_t;
typedef struct { int32_t is_ok; x07_bytes_t ok; int32_t err; } x07_result_bytes_t;

static x07_option_i32_t x07_some_i32(int32_t v) { x07_option_i32_t o = { 1, v }; return o; }
static x07_option_i32_t x07_none_i32(void) { x07_option_i32_t o = { 0, 0 }; return o; }
static x07_result_i32_t x07_ok_i32(int32_t v) { x07_result_i32_t r = { 1, v, 0 }; return r; }
static x07_result_i32_t x07_err_i32(int32_t e) { x07_result_i32_t r = { 0, 0, e }; return r; }
static x07_result_bytes_t x07_ok_bytes(x07_bytes_t v) { x07_result_bytes_t r; r.is_ok = 1; r.ok = v; r.err = 0; return r; }
static x07_result_bytes_t x07_err_bytes(int32_t e) { x07_result_bytes_t r; r.is_ok = 0; r.ok.ptr = NULL; r.ok.len = 0; r.err = e; return r; }

/* task.join.bytes/chan.recv/fs.read's return type (x07_result_bytes_t) is
 * only defined above this point, so these live here rather than in their
 * own sections of the runtime preamble. */
static x07_result_bytes_t x07_task_join_bytes(int32_t id) {
	int idx = x07_task_find(id);
	if (idx < 0) return x07_err_bytes(-1);
	while (x07_tasks[idx].status != X07_TS_DONE) {
		if (!x07_sched_step()) return x07_err_bytes(-2);
	}
	if (x07_tasks[idx].cancelled) return x07_err_bytes(X07_ERR_CANCELED);
	return x07_ok_bytes(x07_tasks[idx].result);
}

static x07_result_bytes_t x07_chan_recv(x07_chan_t *ch) {
	for (;;) {
		if (x07_task_should_cancel()) return x07_err_bytes(X07_ERR_CANCELED);
		if (ch->len > 0) {
			x07_bytes_t msg = ch->buf[ch->head];
			ch->head = (ch->head + 1) % ch->cap;
			ch->len--;
			x07_trace_event(x07_cur_task_id(), 6, (uint64_t)ch->len);
			if (ch->send_waiter >= 0) { int w = ch->send_waiter; ch->send_waiter = -1; x07_task_wake(w); }
			return x07_ok_bytes(msg);
		}
		if (ch->closed) return x07_err_bytes(X07_ERR_CHAN_EOF);
		if (x07_current_task < 0) {
			if (!x07_sched_step()) return x07_err_bytes(X07_ERR_CHAN_EOF);
			continue;
		}
		ch->recv_waiter = x07_current_task;
		x07_tasks[x07_current_task].status = X07_TS_BLOCKED;
		swapcontext(&x07_tasks[x07_current_task].ctx, &x07_sched_ctx);
	}
}

/* fs.read resolves a view-encoded relative path against the fixture root
 * the runner stages at X07_FS_ROOT: an absolute path or a ".." component is rejected as
 * X07_ERR_FS_DENIED before anything ever reaches the filesystem, the same
 * containment fopen/open alone can't give you. */
static x07_result_bytes_t x07_fs_read(x07_view_t path) {
	if (path.len == 0 || path.len > 4095) return x07_err_bytes(X07_ERR_FS_DENIED);
	char rel[4096];
	memcpy(rel, path.ptr, path.len);
	rel[path.len] = 0;
	if (rel[0] == '/') return x07_err_bytes(X07_ERR_FS_DENIED);
	for (const char *p = rel; *p; ) {
		const char *seg = p;
		while (*p && *p != '/') p++;
		if (p - seg == 2 && seg[0] == '.' && seg[1] == '.') return x07_err_bytes(X07_ERR_FS_DENIED);
		if (*p == '/') p++;
	}
	const char *root = getenv("X07_FS_ROOT");
	if (!root) return x07_err_bytes(X07_ERR_FS_DENIED);
	char full[8192];
	int n = snprintf(full, sizeof(full), "%s/%s", root, rel);
	if (n < 0 || (size_t)n >= sizeof(full)) return x07_err_bytes(X07_ERR_FS_DENIED);
	FILE *f = fopen(full, "rb");
	if (!f) return x07_err_bytes(X07_ERR_FS_DENIED);
	size_t cap = 4096, len = 0;
	uint8_t *buf = (uint8_t *)x07_alloc(cap);
	for (;;) {
		size_t n2 = fread(buf + len, 1, cap - len, f);
		len += n2;
		if (len < cap) break;
		size_t newcap = cap * 2;
		uint8_t *p2 = (uint8_t *)x07_alloc(newcap);
		memcpy(p2, buf, len);
		x07_mem_note_copy(len);
		x07_free(buf, cap);
		x07_mem_stats.realloc_calls++;
		buf = p2;
		cap = newcap;
	}
	fclose(f);
	x07_bytes_t b;
	if (cap != len) {
		/* x07_bytes_t carries no capacity field, so x07_bytes_drop frees
		 * exactly b.len bytes later — shrink to an exact-size allocation now
		 * rather than let mem_stats.live_bytes undercount what gets freed. */
		uint8_t *exact = (uint8_t *)x07_alloc(len);
		if (len) { memcpy(exact, buf, len); x07_mem_note_copy(len); }
		x07_free(buf, cap);
		x07_mem_stats.realloc_calls++;
		buf = exact;
	}
	b.ptr = buf;
	b.len = len;
	return x07_ok_bytes(b);
}
`

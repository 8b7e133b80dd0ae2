package emit

// runtimePreamble is the fixed C prologue emitted into every translation
// unit ahead of the lowered module code: the allocator, fuel counter, drop
// glue, the debug borrow table, the channel subsystem, and the
// single-threaded cooperative task scheduler that backs defasync/task.*/
// chan.*.
//
// This is hand-written C, not Go-templated, for the same reason the x07AST
// wire format itself is hand-specified: the runtime's shape is fixed in
// advance, not derived from per-module content.
const runtimePreamble = `/* generated by x07 — do not edit by hand */
#include <stdint.h>
#include <stddef.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <ucontext.h>
#include <unistd.h>

typedef struct {
	size_t bytes_allocated;
	size_t bytes_freed;
	size_t live_allocations;
	uint64_t alloc_calls;
	uint64_t free_calls;
	uint64_t realloc_calls;
	uint64_t memcpy_bytes;
	size_t peak_live_bytes;
} x07_mem_stats_t;
static x07_mem_stats_t x07_mem_stats;

static void x07_mem_note_copy(size_t n) { x07_mem_stats.memcpy_bytes += n; }

static uint64_t x07_fuel;
static uint64_t x07_fuel_initial;
static uint64_t x07_vclock;

typedef enum { X07_OK = 0, X07_TRAP_FUEL_EXHAUSTED, X07_TRAP_OOB, X07_TRAP_MEM_CAP_EXCEEDED } x07_trap_t;
static x07_trap_t x07_trap;

/* X07_MEM_CAP: the heap's fixed capacity in bytes, default
 * 64MiB, overridable per run via X07_MEM_CAP (see emitMain) the same way
 * X07_FUEL_LIMIT overrides the fuel budget. */
static uint64_t x07_mem_cap = (uint64_t)64 * 1024 * 1024;
static void x07_mem_cap_init(uint64_t cap) { x07_mem_cap = cap; }

/* result<_,i32> error codes a builtin (rather than the program itself) can
 * produce — reachable from chan.send/chan.recv/fs.read/task.join.bytes,
 * surfaced to x07 code as the plain i32 err of a result value, not a
 * process-level trap. */
#define X07_ERR_CHAN_CLOSED 1
#define X07_ERR_CHAN_EOF     2
#define X07_ERR_RR_MISS      3
#define X07_ERR_KV_MISS      4
#define X07_ERR_FS_DENIED    5
#define X07_ERR_CANCELED     6

static void x07_fuel_init(uint64_t limit) {
	x07_fuel = limit;
	x07_fuel_initial = limit;
}

/* cost is the per-builtin fuel charge from the frozen fuel_costs.json
 * table (internal/emit/fuelcost.go); a single expensive primitive (a
 * channel op, a filesystem read) can exhaust fuel in one tick rather than
 * needing cost-many uniform ticks to add up to the same effect. */
static void x07_fuel_tick(uint32_t cost) {
	if (x07_fuel < cost) { x07_fuel = 0; x07_trap = X07_TRAP_FUEL_EXHAUSTED; return; }
	x07_fuel -= cost;
}

/* x07_alloc never refuses an allocation outright (nothing downstream
 * checks for a NULL x07_bytes_t/x07_vec_t buffer) — exceeding X07_MEM_CAP
 * instead raises the trap flag, following the same pattern as an
 * out-of-bounds subview: execution keeps going with whatever value it
 * already has, and main() reports the trap once it reaches the end of
 * x07_solve_v2 rather than crashing mid-primitive. */
static void *x07_alloc(size_t n) {
	if ((uint64_t)(x07_mem_stats.bytes_allocated - x07_mem_stats.bytes_freed) + (uint64_t)n > x07_mem_cap) {
		x07_trap = X07_TRAP_MEM_CAP_EXCEEDED;
	}
	void *p = malloc(n ? n : 1);
	x07_mem_stats.bytes_allocated += n;
	x07_mem_stats.live_allocations++;
	x07_mem_stats.alloc_calls++;
	size_t live = x07_mem_stats.bytes_allocated - x07_mem_stats.bytes_freed;
	if (live > x07_mem_stats.peak_live_bytes) x07_mem_stats.peak_live_bytes = live;
	return p;
}

static void x07_free(void *p, size_t n) {
	if (!p) return;
	free(p);
	x07_mem_stats.bytes_freed += n;
	x07_mem_stats.live_allocations--;
	x07_mem_stats.free_calls++;
}

typedef struct { uint8_t *ptr; size_t len; } x07_bytes_t;
typedef struct { const uint8_t *ptr; size_t len; } x07_view_t;
typedef struct { uint8_t *ptr; size_t len; size_t cap; } x07_vec_t;

static x07_view_t x07_bytes_view(const x07_bytes_t *b) { x07_view_t v = { b->ptr, b->len }; return v; }
static x07_view_t x07_bytes_subview(const x07_bytes_t *b, int32_t start, int32_t len) {
	x07_view_t v;
	if (start < 0 || len < 0 || (size_t)start + (size_t)len > b->len) { x07_trap = X07_TRAP_OOB; v.ptr = NULL; v.len = 0; return v; }
	v.ptr = b->ptr + start;
	v.len = (size_t)len;
	return v;
}
static x07_view_t x07_vec_as_view(const x07_vec_t *v) { x07_view_t r = { v->ptr, v->len }; return r; }
static int32_t x07_view_len(x07_view_t v) { return (int32_t)v.len; }
static int32_t x07_cmp_range(x07_view_t a, x07_view_t b) {
	size_t n = a.len < b.len ? a.len : b.len;
	int c = n ? memcmp(a.ptr, b.ptr, n) : 0;
	if (c != 0) return c < 0 ? -1 : 1;
	if (a.len == b.len) return 0;
	return a.len < b.len ? -1 : 1;
}
static x07_bytes_t x07_view_to_bytes(x07_view_t v) {
	x07_bytes_t b;
	b.ptr = (uint8_t *)x07_alloc(v.len);
	if (v.len) { memcpy(b.ptr, v.ptr, v.len); x07_mem_note_copy(v.len); }
	b.len = v.len;
	return b;
}
static void x07_bytes_drop(x07_bytes_t *b) { x07_free(b->ptr, b->len); b->ptr = NULL; b->len = 0; }

static x07_vec_t x07_vec_new(void) { x07_vec_t v = { NULL, 0, 0 }; return v; }
static int32_t x07_vec_len(x07_vec_t v) { return (int32_t)v.len; }
static x07_vec_t x07_vec_push(x07_vec_t v, int32_t byte) {
	if (v.len == v.cap) {
		size_t newcap = v.cap ? v.cap * 2 : 16;
		uint8_t *p = (uint8_t *)x07_alloc(newcap);
		if (v.len) { memcpy(p, v.ptr, v.len); x07_mem_note_copy(v.len); }
		x07_free(v.ptr, v.cap);
		x07_mem_stats.realloc_calls++;
		v.ptr = p;
		v.cap = newcap;
	}
	v.ptr[v.len++] = (uint8_t)byte;
	return v;
}
static void x07_vec_drop(x07_vec_t *v) { x07_free(v->ptr, v->cap); v->ptr = NULL; v->len = v->cap = 0; }

#ifdef X07_DEBUG
typedef struct { const void *owner; int borrow_count; } x07_borrow_entry_t;
#define X07_BORROW_TABLE_CAP 256
static x07_borrow_entry_t x07_borrow_table[X07_BORROW_TABLE_CAP];
static int x07_borrow_table_len;

static void x07_borrow_begin(const void *owner) {
	for (int i = 0; i < x07_borrow_table_len; i++) {
		if (x07_borrow_table[i].owner == owner) { x07_borrow_table[i].borrow_count++; return; }
	}
	if (x07_borrow_table_len < X07_BORROW_TABLE_CAP) {
		x07_borrow_table[x07_borrow_table_len].owner = owner;
		x07_borrow_table[x07_borrow_table_len].borrow_count = 1;
		x07_borrow_table_len++;
	}
}
static void x07_borrow_end(const void *owner) {
	for (int i = 0; i < x07_borrow_table_len; i++) {
		if (x07_borrow_table[i].owner == owner) { x07_borrow_table[i].borrow_count--; return; }
	}
}
#else
static void x07_borrow_begin(const void *owner) { (void)owner; }
static void x07_borrow_end(const void *owner) { (void)owner; }
#endif

/* task.* / chan.* — a single-threaded cooperative scheduler. Each spawned
 * defasync task is a real stackful coroutine (ucontext_t); at most one runs
 * at a time, and control only passes between them at an explicit yield,
 * sleep, or channel op that would otherwise have to wait — every other
 * statement in a task body runs uninterrupted, so the scheduler's FIFO
 * ready queue plus the sorted wakeup set fully determine execution order.
 * sched_trace_hash folds every one of those scheduling
 * decisions into a running FNV-1a accumulator so two runs of the same
 * program produce the same hash iff they made the same decisions in the
 * same order. */
typedef enum { X07_TS_READY, X07_TS_BLOCKED, X07_TS_SLEEPING, X07_TS_DONE } x07_task_status_t;

typedef struct {
	int32_t id;
	x07_task_status_t status;
	x07_bytes_t result;
	int cancelled;
	void (*thunk)(void *);
	void *argp;
	uint8_t *stack;
	uint64_t wake_at;
	ucontext_t ctx;
} x07_task_t;

#define X07_MAX_TASKS 64
#define X07_TASK_STACK_SIZE (256 * 1024)
static x07_task_t x07_tasks[X07_MAX_TASKS];
static int32_t x07_task_count;
static int32_t x07_next_task_id = 1;
static int32_t x07_current_task = -1;
static ucontext_t x07_sched_ctx;

static int x07_ready_queue[X07_MAX_TASKS];
static int x07_ready_head, x07_ready_len;

static void x07_ready_push(int idx) {
	if (x07_ready_len >= X07_MAX_TASKS) return;
	int pos = (x07_ready_head + x07_ready_len) % X07_MAX_TASKS;
	x07_ready_queue[pos] = idx;
	x07_ready_len++;
}
static int x07_ready_pop(void) {
	int idx = x07_ready_queue[x07_ready_head];
	x07_ready_head = (x07_ready_head + 1) % X07_MAX_TASKS;
	x07_ready_len--;
	return idx;
}

static int32_t x07_cur_task_id(void) { return x07_current_task >= 0 ? x07_tasks[x07_current_task].id : 0; }

static uint64_t x07_sched_trace_acc = 1469598103934665603ULL; /* FNV-1a 64 offset basis */
static void x07_trace_event(int32_t task_id, int32_t kind, uint64_t payload) {
	uint8_t b[16];
	b[0] = (uint8_t)(task_id >> 24); b[1] = (uint8_t)(task_id >> 16); b[2] = (uint8_t)(task_id >> 8); b[3] = (uint8_t)task_id;
	b[4] = (uint8_t)(kind >> 24); b[5] = (uint8_t)(kind >> 16); b[6] = (uint8_t)(kind >> 8); b[7] = (uint8_t)kind;
	for (int i = 0; i < 8; i++) b[8 + i] = (uint8_t)(payload >> (56 - 8 * i));
	for (int i = 0; i < 16; i++) { x07_sched_trace_acc ^= b[i]; x07_sched_trace_acc *= 1099511628211ULL; }
}

static void x07_task_wake(int idx) {
	if (x07_tasks[idx].status == X07_TS_DONE) return;
	x07_tasks[idx].status = X07_TS_READY;
	x07_ready_push(idx);
}

/* x07_sched_step runs exactly one scheduling decision: resume the next
 * ready task until it blocks/sleeps/finishes, or — if nothing is ready —
 * advance virtual time to the earliest pending wakeup and ready every task
 * due at that instant. Returns 0 only when no task is ready and none is
 * sleeping (every remaining task, if any, is permanently blocked: a
 * deadlock the caller reports rather than spins on). */
static int x07_sched_step(void) {
	while (x07_ready_len > 0) {
		int idx = x07_ready_pop();
		if (x07_tasks[idx].status != X07_TS_READY) continue;
		x07_current_task = idx;
		swapcontext(&x07_sched_ctx, &x07_tasks[idx].ctx);
		x07_current_task = -1;
		return 1;
	}
	int found = -1;
	uint64_t best = 0;
	for (int i = 0; i < x07_task_count; i++) {
		if (x07_tasks[i].status == X07_TS_SLEEPING && (found < 0 || x07_tasks[i].wake_at < best)) {
			found = i;
			best = x07_tasks[i].wake_at;
		}
	}
	if (found < 0) return 0;
	if (best > x07_vclock) x07_vclock = best;
	for (int i = 0; i < x07_task_count; i++) {
		if (x07_tasks[i].status == X07_TS_SLEEPING && x07_tasks[i].wake_at <= x07_vclock) {
			x07_tasks[i].status = X07_TS_READY;
			x07_ready_push(i);
		}
	}
	return 1;
}

static void x07_task_trampoline(int idx) {
	x07_current_task = idx;
	x07_task_t *t = &x07_tasks[idx];
	t->thunk(t->argp);
	t->status = X07_TS_DONE;
	x07_current_task = -1;
	x07_trace_event(t->id, 9, 0);
	swapcontext(&t->ctx, &x07_sched_ctx);
}

/* x07_task_spawn is defasync's real spawn point: it sets up a fresh stack
 * and ucontext for the task body and enqueues it ready, returning
 * immediately without running a single instruction of it — the body only
 * executes once the scheduler (driven by task.join.bytes, or by another
 * task's blocking channel op) gets around to it, in FIFO spawn order. */
static int32_t x07_task_spawn(void (*thunk)(void *), void *argp) {
	if (x07_task_count >= X07_MAX_TASKS) { x07_trap = X07_TRAP_OOB; return -1; }
	int idx = x07_task_count++;
	x07_task_t *t = &x07_tasks[idx];
	t->id = x07_next_task_id++;
	t->status = X07_TS_READY;
	t->cancelled = 0;
	t->thunk = thunk;
	t->argp = argp;
	t->stack = (uint8_t *)malloc(X07_TASK_STACK_SIZE);
	getcontext(&t->ctx);
	t->ctx.uc_stack.ss_sp = t->stack;
	t->ctx.uc_stack.ss_size = X07_TASK_STACK_SIZE;
	t->ctx.uc_link = &x07_sched_ctx;
	makecontext(&t->ctx, (void (*)(void))x07_task_trampoline, 1, idx);
	x07_trace_event(t->id, 3, 0);
	x07_ready_push(idx);
	return t->id;
}

static int x07_task_find(int32_t id) {
	for (int i = 0; i < x07_task_count; i++) if (x07_tasks[i].id == id) return i;
	return -1;
}

static int32_t x07_task_yield(void) {
	x07_trace_event(x07_cur_task_id(), 1, x07_vclock);
	if (x07_current_task >= 0) {
		int idx = x07_current_task;
		x07_tasks[idx].status = X07_TS_READY;
		x07_ready_push(idx);
		swapcontext(&x07_tasks[idx].ctx, &x07_sched_ctx);
	} else {
		x07_vclock++;
	}
	return 0;
}

static int32_t x07_task_sleep(int32_t ms) {
	uint64_t dur = (uint64_t)(ms < 0 ? 0 : ms);
	x07_trace_event(x07_cur_task_id(), 2, dur);
	if (x07_current_task >= 0) {
		int idx = x07_current_task;
		x07_tasks[idx].status = X07_TS_SLEEPING;
		x07_tasks[idx].wake_at = x07_vclock + dur;
		swapcontext(&x07_tasks[idx].ctx, &x07_sched_ctx);
	} else {
		x07_vclock += dur;
	}
	return 0;
}

/* x07_task_should_cancel is the one place a task's own code checks its
 * cancellation flag, at a suspension point it's resuming from; it never
 * flips status itself, leaving that to the checkpoint that calls it so the
 * checkpoint can run drop glue first. */
static int x07_task_should_cancel(void) {
	return x07_current_task >= 0 && x07_tasks[x07_current_task].cancelled;
}

/* x07_task_cancel only raises the flag; the target observes it itself the
 * next time it reaches a suspension point (task.yield, task.sleep,
 * chan.send, chan.recv) and unwinds through its own drop glue there
 * (internal/emit/lower.go's emitCancelCheckpoint, plus the should_cancel
 * checks inside x07_chan_send/x07_chan_recv). A sleeping or blocked task
 * is woken into the ready queue so it actually gets scheduled again and
 * gets that chance, rather than sitting cancelled-but-never-resumed
 * forever. */
static int32_t x07_task_cancel(int32_t id) {
	int idx = x07_task_find(id);
	if (idx < 0 || x07_tasks[idx].status == X07_TS_DONE) return 0;
	x07_tasks[idx].cancelled = 1;
	x07_trace_event(id, 4, 0);
	if (x07_tasks[idx].status == X07_TS_SLEEPING || x07_tasks[idx].status == X07_TS_BLOCKED) {
		x07_task_wake(idx);
	}
	return 0;
}

/* chan.bytes — a bounded FIFO of owned byte buffers shared by pointer
 * between the tasks (and optionally the top-level solve body) that hold
 * it; a capacity-1 channel needs its second producer send to actually
 * block until the consumer drains the first message, which
 * is exactly what x07_chan_send does below via the task scheduler. */
typedef struct {
	x07_bytes_t *buf;
	size_t cap;
	size_t head, len;
	int closed;
	int send_waiter;
	int recv_waiter;
} x07_chan_t;

static x07_chan_t *x07_chan_new(int32_t capacity) {
	x07_chan_t *ch = (x07_chan_t *)malloc(sizeof(x07_chan_t));
	size_t cap = capacity > 0 ? (size_t)capacity : 1;
	ch->buf = (x07_bytes_t *)malloc(sizeof(x07_bytes_t) * cap);
	ch->cap = cap;
	ch->head = ch->len = 0;
	ch->closed = 0;
	ch->send_waiter = -1;
	ch->recv_waiter = -1;
	return ch;
}

/* x07_chan_send blocks (via the scheduler, not a spin loop) whenever the
 * channel is at capacity and a real task is making the call; a call from
 * outside any task (the top-level solve body) has nothing of its own to
 * suspend, so it drives the scheduler synchronously instead until space
 * frees up. */
static int32_t x07_chan_send(x07_chan_t *ch, x07_bytes_t msg) {
	for (;;) {
		if (x07_task_should_cancel()) { x07_bytes_drop(&msg); return X07_ERR_CANCELED; }
		if (ch->closed) { x07_bytes_drop(&msg); return X07_ERR_CHAN_CLOSED; }
		if (ch->len < ch->cap) {
			ch->buf[(ch->head + ch->len) % ch->cap] = msg;
			ch->len++;
			x07_trace_event(x07_cur_task_id(), 5, (uint64_t)ch->len);
			if (ch->recv_waiter >= 0) { int w = ch->recv_waiter; ch->recv_waiter = -1; x07_task_wake(w); }
			return 0;
		}
		x07_trace_event(x07_cur_task_id(), 7, (uint64_t)ch->cap);
		if (x07_current_task < 0) {
			if (!x07_sched_step()) { x07_bytes_drop(&msg); return X07_ERR_CHAN_CLOSED; }
			continue;
		}
		ch->send_waiter = x07_current_task;
		x07_tasks[x07_current_task].status = X07_TS_BLOCKED;
		swapcontext(&x07_tasks[x07_current_task].ctx, &x07_sched_ctx);
	}
}

static int32_t x07_chan_close(x07_chan_t *ch) {
	ch->closed = 1;
	x07_trace_event(x07_cur_task_id(), 8, 0);
	if (ch->recv_waiter >= 0) { int w = ch->recv_waiter; ch->recv_waiter = -1; x07_task_wake(w); }
	if (ch->send_waiter >= 0) { int w = ch->send_waiter; ch->send_waiter = -1; x07_task_wake(w); }
	return 0;
}

`

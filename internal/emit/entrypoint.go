package emit

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/types"
)

// emitEntryPoint renders x07_solve_v2, the single C symbol the emitted
// main() calls in every world (internal/runner execs the resulting
// binary; it never loads the symbol itself). Open
// Question decision:
// it takes the world's input as a borrowed view and returns an owned
// result<bytes,i32> — every world ultimately reports either a success
// payload or a numbered failure, and a view avoids forcing every world
// implementation to gift an owned copy of its input just to call in.
func (em *Emitter) emitEntryPoint(out *strings.Builder) error {
	if em.Entry.Solve == nil {
		return errors.Errorf("emit: entry module %s has no solve expression", em.Entry.ModuleID)
	}
	em.scope = map[string]types.Type{"input": types.View}
	em.tmp = 0
	em.currentResult = types.ResultBytes
	em.borrowStack = nil
	em.moved = map[string]bool{}
	em.dropStack = [][]dropVar{nil}

	var body strings.Builder
	resultExpr, err := em.lowerExpr(&body, *em.Entry.Solve, 1)
	if err != nil {
		return errors.Wrap(err, "entry solve expression")
	}

	fmt.Fprintf(out, "x07_result_bytes_t x07_solve_v2(x07_view_t input) {\n")
	out.WriteString(body.String())
	t := em.inferType(*em.Entry.Solve)
	em.popDropFrame(out, 1, resultExpr)
	switch t {
	case types.ResultBytes:
		fmt.Fprintf(out, "\treturn %s;\n}\n", resultExpr)
	case types.Bytes:
		fmt.Fprintf(out, "\treturn x07_ok_bytes(%s);\n}\n", resultExpr)
	default:
		return errors.Errorf("emit: solve expression must produce bytes or result<bytes,i32>, found %s", t)
	}
	em.emitMain(out)
	return nil
}

// emitMain renders the process entry point every world shares (internal/
// runner's contract: "the binary reads its input off stdin and writes its
// x07_solve_v2 success payload to stdout, exiting non-zero with a
// diagnostic on stderr on failure"). A runtime trap (fuel exhaustion, the
// memory cap being exceeded, an out-of-bounds access) takes priority over the
// result tag since those corrupt x07_solve_v2's return value rather than
// producing a meaningful err code.
func (em *Emitter) emitMain(out *strings.Builder) {
	fmt.Fprintf(out, "#define X07_FUEL_COSTS_SHA256_PREFIX 0x%016xULL\n", fuelCostsSHA256Prefix())
	out.WriteString(`
static x07_bytes_t x07_read_stdin(void) {
	size_t cap = 4096, len = 0;
	uint8_t *buf = (uint8_t *)malloc(cap);
	for (;;) {
		size_t n = fread(buf + len, 1, cap - len, stdin);
		len += n;
		if (len < cap) break;
		cap *= 2;
		buf = (uint8_t *)realloc(buf, cap);
	}
	x07_bytes_t b;
	b.ptr = buf;
	b.len = len;
	return b;
}

/* X07_REPORT_FD (fd 3 by internal/runner's convention — see Options in
 * internal/runner/runner.go) carries the statistics only this process
 * knows: mem_stats, fuel_used, and sched_stats. exit_code, stdout_sha256, and world are derived by the runner
 * itself from what it already observes, so they aren't duplicated here. A
 * direct invocation with fd 3 closed just means the write silently no-ops.
 */
#define X07_REPORT_FD 3

static void x07_write_report(void) {
	char line[768];
	int n = snprintf(line, sizeof(line),
		"{\"fuel_used\":%llu,\"mem_stats\":{\"live_allocations\":%zu,\"live_bytes\":%zu,"
		"\"alloc_calls\":%llu,\"free_calls\":%llu,\"realloc_calls\":%llu,"
		"\"memcpy_bytes\":%llu,\"peak_live_bytes\":%zu},"
		"\"sched_stats\":{\"virtual_time_end\":%llu,\"sched_trace_hash\":%llu}}\n",
		(unsigned long long)(x07_fuel_initial - x07_fuel),
		x07_mem_stats.live_allocations,
		(size_t)(x07_mem_stats.bytes_allocated - x07_mem_stats.bytes_freed),
		(unsigned long long)x07_mem_stats.alloc_calls,
		(unsigned long long)x07_mem_stats.free_calls,
		(unsigned long long)x07_mem_stats.realloc_calls,
		(unsigned long long)x07_mem_stats.memcpy_bytes,
		x07_mem_stats.peak_live_bytes,
		(unsigned long long)x07_vclock,
		(unsigned long long)x07_sched_trace_acc);
	if (n > 0) {
		ssize_t off = 0;
		size_t want = (size_t)n < sizeof(line) ? (size_t)n : sizeof(line);
		while (off < (ssize_t)want) {
			ssize_t w = write(X07_REPORT_FD, line + off, want - (size_t)off);
			if (w <= 0) break;
			off += w;
		}
	}
}

int main(void) {
	const char *mem_cap_env = getenv("X07_MEM_CAP");
	if (mem_cap_env) x07_mem_cap_init(strtoull(mem_cap_env, NULL, 10));

	const char *fuel_env = getenv("X07_FUEL_LIMIT");
	uint64_t fuel_limit = fuel_env ? strtoull(fuel_env, NULL, 10) : 10000000ULL;
	x07_fuel_init(fuel_limit);
	/* Folds fuel_costs.json's sha256 (first 8 bytes, big-endian) into
	 * sched_trace_hash before any other event: two builds compiled against
	 * a different frozen cost table can never collide on the same hash,
	 * even if they happen to make identical scheduling decisions. */
	x07_trace_event(0, 0, X07_FUEL_COSTS_SHA256_PREFIX);

	x07_bytes_t in = x07_read_stdin();
	x07_view_t view = x07_bytes_view(&in);
	x07_result_bytes_t r = x07_solve_v2(view);

	x07_write_report();

	if (x07_trap != X07_OK) {
		fprintf(stderr, "x07: trap %d\n", (int)x07_trap);
		return 1;
	}
	if (!r.is_ok) {
		fprintf(stderr, "x07: solve failed with error %d\n", r.err);
		return 1;
	}
	if (r.ok.len) fwrite(r.ok.ptr, 1, r.ok.len, stdout);
	fflush(stdout);
	return 0;
}
`)
}

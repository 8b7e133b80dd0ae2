// Package runner is the L5 layer: it executes a compiled x07 binary under
// one of the toolchain's capability-scoped worlds and produces a
// structured report. Every world ultimately runs the same OS process
// contract: the binary reads its input off stdin and writes its
// x07_solve_v2 success payload to stdout, exiting non-zero with a
// diagnostic on stderr on failure — worlds differ only in what
// surrounding capability the process is allowed to observe (a staged
// filesystem, a policy-enforced network proxy, nothing at all).
package runner

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/bufiox"
	"j5.dev/x07/internal/canon"
	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/types"
)

// maxStderrCapture bounds how much of a child's stderr a Report carries.
// A run-os program under a misbehaving script can write unboundedly to
// stderr; stdout can't be capped the same way since it's the protocol
// channel x07_solve_v2's payload rides on, but stderr is diagnostic text
// only, so capping it to its most recent lines is safe.
const maxStderrCapture = 64 * 1024

// MemStats mirrors the report's full mem_stats object, as tracked by the
// emitted C runtime's x07_mem_stats_t (internal/emit/runtime.go):
// live_allocations/live_bytes are what the leak gate checks at exit, while
// alloc_calls/free_calls/realloc_calls/memcpy_bytes/peak_live_bytes are
// finer allocator counters a caller can use to judge a program's memory
// behavior beyond pass/fail leak-freedom.
type MemStats struct {
	LiveAllocations int64
	LiveBytes       int64
	AllocCalls      uint64
	FreeCalls       uint64
	ReallocCalls    uint64
	MemcpyBytes     uint64
	PeakLiveBytes   int64
}

// SchedStats mirrors the report's sched_stats.
type SchedStats struct {
	VirtualTimeEnd  uint64
	SchedTraceHash  uint64
}

// childReport is the JSON line the emitted binary writes to X07_REPORT_FD
// (internal/emit/entrypoint.go's x07_write_report) — the runner fills in
// exit_code/stdout_sha256/world itself from what it observes directly, so
// the child only needs to report the statistics solely it knows.
type childReport struct {
	FuelUsed  uint64 `json:"fuel_used"`
	MemStats  struct {
		LiveAllocations int64  `json:"live_allocations"`
		LiveBytes       int64  `json:"live_bytes"`
		AllocCalls      uint64 `json:"alloc_calls"`
		FreeCalls       uint64 `json:"free_calls"`
		ReallocCalls    uint64 `json:"realloc_calls"`
		MemcpyBytes     uint64 `json:"memcpy_bytes"`
		PeakLiveBytes   int64  `json:"peak_live_bytes"`
	} `json:"mem_stats"`
	SchedStats struct {
		VirtualTimeEnd int64 `json:"virtual_time_end"`
		SchedTraceHash uint64 `json:"sched_trace_hash"`
	} `json:"sched_stats"`
}

// Report is the result of one run, canonicalized the same way every
// other x07 artifact is.
type Report struct {
	World        types.World
	ExitCode     int
	Stdout       []byte
	StdoutSHA256 []byte
	Stderr       string
	Duration     time.Duration
	Timestamp    int64 // caller-supplied; runner never stamps it from the clock itself (see Open Question decision)
	Cancelled          bool
	FuelUsed           uint64
	MemStats           MemStats
	SchedStats         SchedStats
	HardLimitTriggered bool // child was killed by a configured RLIMIT_AS/RLIMIT_CPU, not its own logic
}

// Canonicalize renders the report in its required shape:
// {exit_code, stdout_sha256, mem_stats, fuel_used,
// sched_stats{virtual_time_end, sched_trace_hash}, world} — plus the extra
// bookkeeping fields (stdout itself, stderr, timing, cancellation) this
// runner's callers also need.
func (r Report) Canonicalize() []byte {
	return canon.Encode(canon.Obj(
		canon.KV("cancelled", canon.Bool(r.Cancelled)),
		canon.KV("duration_ms", canon.Int(r.Duration.Milliseconds())),
		canon.KV("exit_code", canon.Int(int64(r.ExitCode))),
		canon.KV("fuel_used", canon.UInt(r.FuelUsed)),
		canon.KV("mem_stats", canon.Obj(
			canon.KV("live_allocations", canon.Int(r.MemStats.LiveAllocations)),
			canon.KV("live_bytes", canon.Int(r.MemStats.LiveBytes)),
			canon.KV("alloc_calls", canon.UInt(r.MemStats.AllocCalls)),
			canon.KV("free_calls", canon.UInt(r.MemStats.FreeCalls)),
			canon.KV("realloc_calls", canon.UInt(r.MemStats.ReallocCalls)),
			canon.KV("memcpy_bytes", canon.UInt(r.MemStats.MemcpyBytes)),
			canon.KV("peak_live_bytes", canon.Int(r.MemStats.PeakLiveBytes)),
		)),
		canon.KV("sched_stats", canon.Obj(
			canon.KV("virtual_time_end", canon.UInt(r.SchedStats.VirtualTimeEnd)),
			canon.KV("sched_trace_hash", canon.UInt(r.SchedStats.SchedTraceHash)),
		)),
		canon.KV("stderr", canon.Str(r.Stderr)),
		canon.KV("stdout", canon.B64(r.Stdout)),
		canon.KV("stdout_sha256", canon.Hex(r.StdoutSHA256)),
		canon.KV("timestamp", canon.Int(r.Timestamp)),
		canon.KV("world", canon.Str(string(r.World))),
	))
}

// trapDiagCodes maps the numeric x07_trap_t values internal/emit/
// runtime.go's enum assigns to the diagnostic codes a trap
// corresponds to. Only traps with their own named diagnostic are mapped;
// X07_TRAP_OOB covers invariant-4 bookkeeping internal to the runtime and
// has no standalone diag.Code of its own.
var trapDiagCodes = map[int]diag.Code{
	1: diag.FuelExhausted,
	3: diag.MemCapExceeded,
}

// TrapCode parses the "x07: trap N" line internal/emit/entrypoint.go's
// main() writes to stderr on a runtime trap, returning the diag.Code a
// reported trap maps to. ok is false for a trap-free run, an unparseable
// line, or a trap number with no standalone code.
func TrapCode(stderr string) (code diag.Code, ok bool) {
	const marker = "x07: trap "
	idx := strings.Index(stderr, marker)
	if idx < 0 {
		return "", false
	}
	rest := stderr[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return "", false
	}
	code, ok = trapDiagCodes[n]
	return code, ok
}

// Options configures one run.
type Options struct {
	BinaryPath string
	Input      []byte
	Timeout    time.Duration
	Timestamp  int64

	// FSRoot stages a real directory the child process may read/write —
	// populated by the solve-fs world (see fsworld.go) before Run is
	// called; Run itself just forwards it as an environment variable so
	// the child binary knows where its sandboxed root is.
	FSRoot string

	// ProxyAddr, when non-empty, is set as HTTP_PROXY/HTTPS_PROXY for the
	// child — populated by the run-os-sandboxed world (see netpolicy.go).
	ProxyAddr string

	// FuelLimit overrides the emitted binary's default fuel budget via X07_FUEL_LIMIT. Zero leaves the binary's own default in
	// place.
	FuelLimit uint64

	// MemCap overrides the emitted binary's default X07_MEM_CAP heap
	// capacity via the env var of the same name. Zero leaves
	// the binary's own 64MiB default in place.
	MemCap uint64

	// MaxAddressSpace and MaxCPUSeconds, when non-zero, impose a hard POSIX
	// rlimit (RLIMIT_AS, RLIMIT_CPU) on the child in addition to whatever
	// X07_MEM_CAP/fuel the binary enforces on itself — a hard rlimit in
	// run-os* is a last resort (exit code X07_HARD_LIMIT).
	// world.go only sets these for run-os/run-os-sandboxed; deterministic
	// worlds rely on fuel alone and never set them.
	MaxAddressSpace uint64
	MaxCPUSeconds   uint64
}

// Run executes the binary under ctx, enforcing Options.Timeout as a hard
// wall-clock bound on top of whatever the caller's ctx already carries.
func Run(ctx context.Context, world types.World, opt Options) (Report, error) {
	if opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opt.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, opt.BinaryPath)
	cmd.Stdin = bytes.NewReader(opt.Input)
	var stdout bytes.Buffer
	stderr := bufiox.NewLineBuffer(maxStderrCapture)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.Env = os.Environ()
	if opt.FSRoot != "" {
		cmd.Env = append(cmd.Env, "X07_FS_ROOT="+opt.FSRoot)
	}
	if opt.ProxyAddr != "" {
		cmd.Env = append(cmd.Env, "HTTP_PROXY="+opt.ProxyAddr, "HTTPS_PROXY="+opt.ProxyAddr)
	}
	if opt.FuelLimit > 0 {
		cmd.Env = append(cmd.Env, "X07_FUEL_LIMIT="+strconv.FormatUint(opt.FuelLimit, 10))
	}
	if opt.MemCap > 0 {
		cmd.Env = append(cmd.Env, "X07_MEM_CAP="+strconv.FormatUint(opt.MemCap, 10))
	}

	// fd 3 is the report channel internal/emit/entrypoint.go's
	// x07_write_report writes to — a pipe rather than stdout keeps the
	// program's own payload separate from the statistics only the process itself knows.
	reportRead, reportWrite, perr := os.Pipe()
	if perr != nil {
		return Report{}, errors.Wrap(perr, "runner: opening report pipe")
	}
	cmd.ExtraFiles = []*os.File{reportWrite}

	hardLimited := opt.MaxAddressSpace > 0 || opt.MaxCPUSeconds > 0

	start := time.Now()
	err := withHardRlimit(opt.MaxAddressSpace, opt.MaxCPUSeconds, cmd.Start)
	if err != nil {
		reportRead.Close()
		reportWrite.Close()
		return Report{}, errors.Wrap(err, "runner: starting child process")
	}
	reportWrite.Close()
	var childLine []byte
	readDone := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(reportRead)
		sc.Buffer(make([]byte, 0, 1024), 64*1024)
		if sc.Scan() {
			childLine = sc.Bytes()
		}
		close(readDone)
	}()
	err = cmd.Wait()
	<-readDone
	reportRead.Close()
	elapsed := time.Since(start)

	stderrOut := make([]byte, stderr.Len())
	stderr.Read(stderrOut)

	sum := sha256.Sum256(stdout.Bytes())
	report := Report{
		World:        world,
		Stdout:       stdout.Bytes(),
		StdoutSHA256: sum[:],
		Stderr:       string(stderrOut),
		Duration:     elapsed,
		Timestamp:    opt.Timestamp,
	}
	if len(childLine) > 0 {
		var cr childReport
		if jerr := json.Unmarshal(childLine, &cr); jerr == nil {
			report.FuelUsed = cr.FuelUsed
			report.MemStats = MemStats{
				LiveAllocations: cr.MemStats.LiveAllocations,
				LiveBytes:       cr.MemStats.LiveBytes,
				AllocCalls:      cr.MemStats.AllocCalls,
				FreeCalls:       cr.MemStats.FreeCalls,
				ReallocCalls:    cr.MemStats.ReallocCalls,
				MemcpyBytes:     cr.MemStats.MemcpyBytes,
				PeakLiveBytes:   cr.MemStats.PeakLiveBytes,
			}
			report.SchedStats = SchedStats{VirtualTimeEnd: uint64(cr.SchedStats.VirtualTimeEnd), SchedTraceHash: cr.SchedStats.SchedTraceHash}
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		report.Cancelled = true
		return report, nil
	}
	var exitErr *exec.ExitError
	if err != nil {
		if errors.As(err, &exitErr) {
			report.ExitCode = exitErr.ExitCode()
			if hardLimited {
				report.HardLimitTriggered = signaledByHardLimit(exitErr)
			}
			return report, nil
		}
		return report, errors.Wrap(err, "runner: running child process")
	}
	return report, nil
}

// signaledByHardLimit reports whether exitErr's process died from a signal
// consistent with an RLIMIT_AS/RLIMIT_CPU violation rather than its own
// exit() call — the caller has already confirmed a hard limit was
// configured for this run, so this only needs to rule out an unrelated
// signal (the program's own SIGSEGV from a bug, say) as best as an exit
// signal alone can.
func signaledByHardLimit(exitErr *exec.ExitError) bool {
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return false
	}
	return isHardLimitSignal(ws.Signal())
}

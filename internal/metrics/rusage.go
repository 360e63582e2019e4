package metrics

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// clockTicksPerSec mirrors the teacher's tracker.go assumption -- Linux's
// USER_HZ is 100 on every architecture this project targets.
const clockTicksPerSec = 100

// SelfCPUTimes reads this process's own utime/stime from /proc/self/stat,
// grounded on the teacher's internal/observer/tracker.go procSnapshot,
// which reads the same two fields for a tracked child pid. A worker calls
// this just before writing its final StatsRecord (§4.4 step g).
func SelfCPUTimes() (utimeNanos, stimeNanos int64) {
	return cpuTimesFromStat("/proc/self/stat")
}

func cpuTimesFromStat(path string) (utimeNanos, stimeNanos int64) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0
	}
	// Fields after the ")" that closes the process name are
	// space-separated and positionally fixed; utime is field 14, stime
	// is field 15 in the whole-line numbering (1-indexed).
	close := strings.LastIndexByte(string(data), ')')
	if close < 0 || close+2 >= len(data) {
		return 0, 0
	}
	rest := strings.Fields(string(data)[close+2:])
	if len(rest) < 13 {
		return 0, 0
	}
	utimeTicks, _ := strconv.ParseInt(rest[11], 10, 64)
	stimeTicks, _ := strconv.ParseInt(rest[12], 10, 64)
	return ticksToNanos(utimeTicks), ticksToNanos(stimeTicks)
}

func ticksToNanos(ticks int64) int64 {
	return ticks * (1_000_000_000 / clockTicksPerSec)
}

// RusageNanos converts a reaped child's syscall.Rusage (as returned by
// syscall.Wait4, §4.4 step f) into utime/stime nanoseconds for the
// parent-side accumulation into StatsRecord's *_total fields.
func RusageNanos(ru *syscall.Rusage) (utimeNanos, stimeNanos int64) {
	if ru == nil {
		return 0, 0
	}
	return ru.Utime.Nano(), ru.Stime.Nano()
}

// MaxRSSKB extracts peak resident set size, in kilobytes, from a reaped
// child's rusage. Linux reports Maxrss already in kilobytes.
func MaxRSSKB(ru *syscall.Rusage) int64 {
	if ru == nil {
		return 0
	}
	return ru.Maxrss
}

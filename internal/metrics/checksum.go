// Package metrics implements the metrics & integrity engine (§4.5):
// per-worker rusage accounting, checksum finalisation/verification, and
// aggregation (sums, arithmetic/geometric means) over a completed entry.
//
// The checksum hash is grounded on the pack's use of
// github.com/cespare/xxhash/v2 (a transitive dependency of the teacher
// and of intel-PerfSpect/octoreflex's prometheus stack, promoted here to
// a direct one): a fast, collision-resistant, non-cryptographic hash,
// exactly the class spec.md's Checksum record calls for.
package metrics

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/loadbreaker/loadbreaker/internal/shared"
)

// Hash computes the checksum over (counter, run_ok, zero padding) per
// §3's Checksum record layout.
func Hash(counter uint64, runOK bool) uint64 {
	var buf [13]byte
	binary.LittleEndian.PutUint64(buf[0:8], counter)
	if runOK {
		buf[8] = 1
	}
	// buf[9:13] is the zero padding named in the spec's checksum data shape.
	return xxhash.Sum64(buf[:])
}

// Finalize is called by a worker immediately before it exits (§4.4 step h):
// it writes the checksum record from the worker's own final stats.
func Finalize(stats *shared.StatsRecord, cksum *shared.ChecksumRecord) {
	cksum.Counter = stats.CounterTotal
	if stats.RunOK != 0 {
		cksum.RunOK = 1
	} else {
		cksum.RunOK = 0
	}
	cksum.Hash = Hash(cksum.Counter, cksum.RunOK != 0)
}

// Verify independently rehashes from the stats slot and compares against
// the worker-written checksum (§4.5 Integrity check, §8 property 3).
func Verify(stats *shared.StatsRecord, cksum *shared.ChecksumRecord) bool {
	wantHash := Hash(stats.CounterTotal, stats.RunOK != 0)
	if wantHash != cksum.Hash {
		return false
	}
	if cksum.Counter != stats.CounterTotal {
		return false
	}
	wantRunOK := stats.RunOK != 0
	gotRunOK := cksum.RunOK != 0
	return wantRunOK == gotRunOK
}

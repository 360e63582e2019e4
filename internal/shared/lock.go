package shared

import (
	"sync/atomic"
	"time"
)

// SpinLock serialises access to a region inside the shared plane (the
// log region, the named-resource maps) across process boundaries, where
// a language-level sync.Mutex would not apply -- each worker is a
// separate process with its own runtime. It is a plain atomic
// compare-and-swap loop over a word physically shared via mmap, which is
// sound on cache-coherent hardware. Held only across short formatting
// operations, never across fork/exec or signal delivery (§4.5/§9).
type SpinLock struct {
	word *uint32
}

// NewSpinLock wraps the header's LogLock word.
func NewSpinLock(word *uint32) *SpinLock {
	return &SpinLock{word: word}
}

// Lock spins with a brief backoff until it acquires the word.
func (l *SpinLock) Lock() {
	for !atomic.CompareAndSwapUint32(l.word, 0, 1) {
		time.Sleep(time.Microsecond)
	}
}

// Unlock releases the word.
func (l *SpinLock) Unlock() {
	atomic.StoreUint32(l.word, 0)
}

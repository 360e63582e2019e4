package stressor

import (
	"fmt"
	"os"

	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// HDD implements a write/fsync/read/unlink workload against a per-instance
// scratch file (§3 classes io/filesystem).
type HDD struct {
	base
	dir        string
	blockBytes int
}

func NewHDD(dir string) *HDD {
	if dir == "" {
		dir = "."
	}
	return &HDD{dir: dir, blockBytes: 64 * 1024}
}

func (h *HDD) Supported(string) error { return nil }

func (h *HDD) Help() []registry.HelpLine {
	return []registry.HelpLine{{Opt: "--hdd-bytes N", Text: "size of each write/read block"}}
}

// Run writes a block, fsyncs, seeks to start, reads it back, and closes
// and removes the file each bogo-op -- each pass exercises a fresh file
// descriptor and inode rather than amortising open() cost, matching
// stress-ng's hdd stressor intent of hammering the filesystem path.
func (h *HDD) Run(args *registry.Args) registry.ExitCode {
	block := make([]byte, h.blockBytes)
	for i := range block {
		block[i] = byte(i)
	}

	return runLoop(args, func() error {
		path := fmt.Sprintf("%s/.loadbreaker-hdd-%d-%d", h.dir, args.PID, args.Instance)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer os.Remove(path)
		defer f.Close()

		if _, err := f.Write(block); err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}
		if _, err := f.Seek(0, 0); err != nil {
			return err
		}
		readBack := make([]byte, len(block))
		if _, err := f.Read(readBack); err != nil {
			return err
		}
		return nil
	})
}

package jobfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesStressorList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	contents := `
mode: explicit
seed: 7
stressors:
  - name: cpu
    instances: 4
  - name: vm
    instances: 2
    ops_limit: 1000
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write job file: %v", err)
	}

	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if j.Mode != "explicit" || j.Seed != 7 {
		t.Errorf("mode/seed = %q,%d want explicit,7", j.Mode, j.Seed)
	}
	if len(j.Stressors) != 2 || j.Stressors[1].OpsLimit != 1000 {
		t.Fatalf("unexpected stressors: %+v", j.Stressors)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/job.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// Package jobfile loads the --job FILE run description (§6.2), a
// declarative alternative to passing every flag on the command line.
// Uses gopkg.in/yaml.v3, matching the report package's format so a job
// file and a report share the same tooling.
package jobfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StressorSpec is one entry of a job file's stressor list.
type StressorSpec struct {
	Name      string `yaml:"name"`
	Instances int32  `yaml:"instances"`
	OpsLimit  uint64 `yaml:"ops_limit,omitempty"`
}

// Job is the top-level job-file document (§6.2 --job FILE).
type Job struct {
	Mode              string         `yaml:"mode"` // all, sequential, permute, random, explicit
	Timeout           string         `yaml:"timeout,omitempty"`
	InstanceCount     int32          `yaml:"instances,omitempty"`
	Class             []string       `yaml:"class,omitempty"`
	With              []string       `yaml:"with,omitempty"`
	Exclude           []string       `yaml:"exclude,omitempty"`
	AllowPathological bool           `yaml:"allow_pathological,omitempty"`
	Seed              int64          `yaml:"seed,omitempty"`
	Abort             bool           `yaml:"abort,omitempty"`
	Quiet             bool           `yaml:"quiet,omitempty"`
	Output            string         `yaml:"output,omitempty"`
	Stressors         []StressorSpec `yaml:"stressors,omitempty"`
}

// Load parses a job file from path.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file %s: %w", path, err)
	}
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}
	return &j, nil
}

package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thalesfsp/horunner"
)

// RunFile is the YAML form of the run command's options. Every field maps to
// a flag of the same name; flags given on the command line win.
type RunFile struct {
	Objective     string          `yaml:"objective"`
	Trials        int             `yaml:"trials"`
	Concurrency   int             `yaml:"concurrency"`
	PointsPerSlot int             `yaml:"points_per_slot"`
	Mode          string          `yaml:"mode"`
	Lockstep      bool            `yaml:"lockstep"`
	Gamma         float64         `yaml:"gamma"`
	Seed          int64           `yaml:"seed"`
	Engine        string          `yaml:"engine"`
	Acquisition   string          `yaml:"acquisition"`
	Init          string          `yaml:"init"`
	Output        string          `yaml:"output"`
	PollInterval  string          `yaml:"poll_interval"`
	CrashGrace    *int            `yaml:"crash_grace"`
	Command       []string        `yaml:"command"`
	Space         *horunner.Space `yaml:"space"`
}

// LoadRunFile parses a run file with strict field checking: unknown keys are
// errors so typos do not silently fall back to defaults.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file %s: %w", path, err)
	}

	var rf RunFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&rf); err != nil {
		return nil, fmt.Errorf("parse run file %s: %w", path, err)
	}

	if rf.Space != nil {
		if err := rf.Space.Validate(); err != nil {
			return nil, fmt.Errorf("run file %s: %w", path, err)
		}
	}

	return &rf, nil
}

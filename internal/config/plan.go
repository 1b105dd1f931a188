package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Plan is a migration plan file:
//
//	migrations:
//	  - from: /mnt/old
//	    to: /mnt/new
//	  - from: /srv/a
//	    to: /srv/b
//	    select: comm == "nginx"
type Plan struct {
	Migrations []Migration `yaml:"migrations"`
}

// LoadPlan reads and validates a plan file from fs.
func LoadPlan(fs afero.Fs, path string) (*Plan, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates a plan. Unknown keys are rejected.
func ParsePlan(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var plan Plan
	if err := dec.Decode(&plan); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if len(plan.Migrations) == 0 {
		return nil, fmt.Errorf("plan has no migrations")
	}
	for i, m := range plan.Migrations {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("plan entry %d: %w", i+1, err)
		}
	}
	return &plan, nil
}

// ValidateTarget checks that path exists on fs and is a directory.
func ValidateTarget(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("new path %s does not exist", path)
		}
		return fmt.Errorf("checking new path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("new path %s is not a directory", path)
	}
	return nil
}

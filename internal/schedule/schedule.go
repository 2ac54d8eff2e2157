// Package schedule holds the ordered list of (mode, concurrency) pairs a
// sweep walks through.
package schedule

import (
	"fmt"

	"github.com/mpataki/apsweep/internal/models"
)

// The default schedule is hand-picked, not a cross product of modes and
// concurrency levels. Order matters.
var defaultSchedule = []models.RunSpec{
	{Mode: 0, Concurrency: 1},
	{Mode: 0, Concurrency: 2},
	{Mode: 0, Concurrency: 4},
	{Mode: 0, Concurrency: 8},
	{Mode: 1, Concurrency: 1},
	{Mode: 1, Concurrency: 2},
	{Mode: 1, Concurrency: 4},
	{Mode: 1, Concurrency: 8},
	{Mode: 2, Concurrency: 1},
}

// Default returns a fresh copy of the built-in schedule.
func Default() []models.RunSpec {
	out := make([]models.RunSpec, len(defaultSchedule))
	copy(out, defaultSchedule)
	return out
}

var (
	validModes       = map[int]bool{0: true, 1: true, 2: true}
	validConcurrency = map[int]bool{1: true, 2: true, 4: true, 8: true}
)

// Validate checks every entry is in range and that no pair repeats, since a
// repeated pair would produce the same artifact name twice.
func Validate(specs []models.RunSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("schedule is empty")
	}

	seen := make(map[models.RunSpec]int, len(specs))
	for i, s := range specs {
		if !validModes[s.Mode] {
			return fmt.Errorf("schedule entry %d: mode %d not in {0,1,2}", i, s.Mode)
		}
		if !validConcurrency[s.Concurrency] {
			return fmt.Errorf("schedule entry %d: concurrency %d not in {1,2,4,8}", i, s.Concurrency)
		}
		if prev, dup := seen[s]; dup {
			return fmt.Errorf("schedule entry %d duplicates entry %d (%s)", i, prev, s)
		}
		seen[s] = i
	}
	return nil
}

// Load returns the schedule from scriptPath, or the default when it is empty.
func Load(scriptPath string) ([]models.RunSpec, error) {
	if scriptPath == "" {
		return Default(), nil
	}
	return LoadScript(scriptPath)
}

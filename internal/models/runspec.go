package models

import "fmt"

// RunSpec is one (mode, concurrency) entry of a sweep schedule.
type RunSpec struct {
	Mode        int `yaml:"mode"`
	Concurrency int `yaml:"concurrency"`
}

func (s RunSpec) String() string {
	return fmt.Sprintf("e%d/j%d", s.Mode, s.Concurrency)
}

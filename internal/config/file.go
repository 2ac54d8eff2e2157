package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File mirrors apsweep.yaml. Pointer fields distinguish "unset" from zero values.
type File struct {
	ToolRoot       string `yaml:"tool_root"`
	ToolRootEnv    string `yaml:"tool_root_env"`
	Build          string `yaml:"build"`
	BuildTarget    string `yaml:"build_target"`
	Debug          *bool  `yaml:"debug"`
	LogFile        string `yaml:"log_file"`
	ArtifactPrefix string `yaml:"artifact_prefix"`
	ArtifactExt    string `yaml:"artifact_ext"`
	ScheduleScript string `yaml:"schedule_script"`
}

func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &f, nil
}

func (c *Config) loadFile(path string) error {
	f, err := ParseFile(path)
	if err != nil {
		// A missing file just means defaults
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	c.apply(f, filepath.Dir(path))
	return nil
}

func (c *Config) apply(f *File, baseDir string) {
	if f.ToolRoot != "" {
		c.ToolRoot = f.ToolRoot
	}
	if f.ToolRootEnv != "" {
		c.ToolRootEnv = f.ToolRootEnv
	}
	if f.Build != "" {
		c.Build = f.Build
	}
	if f.BuildTarget != "" {
		c.BuildTarget = f.BuildTarget
	}
	if f.Debug != nil {
		c.Debug = *f.Debug
	}
	if f.LogFile != "" {
		c.LogFile = f.LogFile
	}
	if f.ArtifactPrefix != "" {
		c.ArtifactPrefix = f.ArtifactPrefix
	}
	if f.ArtifactExt != "" {
		c.ArtifactExt = f.ArtifactExt
	}
	if f.ScheduleScript != "" {
		script := f.ScheduleScript
		if !filepath.IsAbs(script) {
			script = filepath.Join(baseDir, script)
		}
		c.ScheduleScript = script
	}
}

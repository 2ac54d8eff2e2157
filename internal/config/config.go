package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultToolRoot       = "/u/course/ece1754/rose/ROSE_INSTALL"
	DefaultToolRootEnv    = "ROSE_PATH"
	DefaultBuild          = "make"
	DefaultBuildTarget    = "run_ap"
	DefaultLogFile        = "auto_run_logs.log"
	DefaultArtifactPrefix = "rose_"
	DefaultArtifactExt    = ".cpp"

	// FileName is looked up in the working directory.
	FileName = "apsweep.yaml"
)

type Config struct {
	DataDir string
	DBPath  string
	WorkDir string

	ToolRoot       string
	ToolRootEnv    string
	Build          string
	BuildTarget    string
	Debug          bool
	LogFile        string
	ArtifactPrefix string
	ArtifactExt    string
	ScheduleScript string
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("APSWEEP_DATA_DIR", filepath.Join(homeDir, ".apsweep"))

	c := &Config{
		DataDir:        dataDir,
		DBPath:         filepath.Join(dataDir, "apsweep.db"),
		WorkDir:        getEnv("APSWEEP_WORKDIR", cwd),
		ToolRoot:       DefaultToolRoot,
		ToolRootEnv:    DefaultToolRootEnv,
		Build:          DefaultBuild,
		BuildTarget:    DefaultBuildTarget,
		Debug:          true,
		LogFile:        DefaultLogFile,
		ArtifactPrefix: DefaultArtifactPrefix,
		ArtifactExt:    DefaultArtifactExt,
	}

	if err := c.loadFile(filepath.Join(c.WorkDir, FileName)); err != nil {
		return nil, err
	}

	// Environment wins over the file.
	c.ToolRoot = getEnv("APSWEEP_TOOL_ROOT", c.ToolRoot)
	c.Build = getEnv("APSWEEP_BUILD", c.Build)
	c.ScheduleScript = getEnv("APSWEEP_SCHEDULE", c.ScheduleScript)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Build == "" {
		return fmt.Errorf("build program must not be empty")
	}
	if c.BuildTarget == "" {
		return fmt.Errorf("build target must not be empty")
	}
	if c.ArtifactPrefix == "" {
		return fmt.Errorf("artifact prefix must not be empty")
	}
	if c.LogFile == "" {
		return fmt.Errorf("log file name must not be empty")
	}
	if c.ToolRootEnv == "" {
		return fmt.Errorf("tool root env name must not be empty")
	}
	return nil
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// LogPath is the shared sweep log inside the working directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.WorkDir, c.LogFile)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

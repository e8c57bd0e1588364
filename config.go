package depot

import (
	"io"
	"log/slog"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config holds global configuration for worlds and schedules
var Config config = config{
	logger:        slog.Default(),
	tableCapacity: 8,
	settings:      DefaultBuildSettings(),
	executor:      MultiThreaded,
}

type config struct {
	logger        *slog.Logger
	tableCapacity int
	settings      BuildSettings
	executor      ExecutorKind
	workers       int
}

// SetLogger replaces the logger used for schedule diagnostics
func (c *config) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	c.logger = l
}

// SetTableCapacity sets the minimum row capacity of a growing table
func (c *config) SetTableCapacity(n int) {
	c.tableCapacity = max(n, 1)
}

// SetBuildSettings sets the settings new schedules start with
func (c *config) SetBuildSettings(s BuildSettings) {
	c.settings = s
}

// SetExecutor sets the executor new schedules start with
func (c *config) SetExecutor(kind ExecutorKind) {
	c.executor = kind
}

// SetWorkers bounds the goroutines of the multi-threaded executor. Zero means GOMAXPROCS.
func (c *config) SetWorkers(n int) {
	c.workers = max(n, 0)
}

// Settings is the file form of the configuration.
type Settings struct {
	AmbiguityDetection  LogLevel     `yaml:"ambiguity_detection"`
	HierarchyDetection  LogLevel     `yaml:"hierarchy_detection"`
	RedundancyDetection LogLevel     `yaml:"redundancy_detection"`
	Executor            ExecutorKind `yaml:"executor"`
	Workers             int          `yaml:"workers"`
	TableCapacity       int          `yaml:"table_capacity"`
}

// LoadSettings decodes YAML settings. Missing keys keep the current configuration.
func LoadSettings(r io.Reader) (Settings, error) {
	s := Settings{
		AmbiguityDetection:  Config.settings.AmbiguityDetection,
		HierarchyDetection:  Config.settings.HierarchyDetection,
		RedundancyDetection: Config.settings.RedundancyDetection,
		Executor:            Config.executor,
		Workers:             Config.workers,
		TableCapacity:       Config.tableCapacity,
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Settings{}, eris.Wrap(err, "decoding settings")
	}
	return s, nil
}

// Apply installs s as the global configuration.
func (c *config) Apply(s Settings) {
	c.settings = BuildSettings{
		AmbiguityDetection:  s.AmbiguityDetection,
		HierarchyDetection:  s.HierarchyDetection,
		RedundancyDetection: s.RedundancyDetection,
	}
	c.executor = s.Executor
	c.SetWorkers(s.Workers)
	c.SetTableCapacity(s.TableCapacity)
}

// LoadFile reads YAML settings from path and applies them.
func (c *config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "opening settings %s", path)
	}
	defer f.Close()
	s, err := LoadSettings(f)
	if err != nil {
		return eris.Wrapf(err, "loading settings %s", path)
	}
	c.Apply(s)
	return nil
}

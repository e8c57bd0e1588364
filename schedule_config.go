package depot

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LogLevel is how a schedule build reacts to a finding.
type LogLevel int

const (
	// Ignore drops the finding.
	Ignore LogLevel = iota
	// Warn logs the finding and keeps building.
	Warn
	// Error fails the build.
	Error
)

var logLevelNames = map[LogLevel]string{Ignore: "ignore", Warn: "warn", Error: "error"}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

func (l *LogLevel) UnmarshalYAML(value *yaml.Node) error {
	for level, name := range logLevelNames {
		if strings.EqualFold(value.Value, name) {
			*l = level
			return nil
		}
	}
	return eris.Errorf("unknown log level %q at line %d", value.Value, value.Line)
}

func (l LogLevel) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// BuildSettings selects how schedule findings are reported.
type BuildSettings struct {
	// AmbiguityDetection covers unordered systems with conflicting access.
	AmbiguityDetection LogLevel
	// HierarchyDetection covers set memberships implied by other memberships.
	HierarchyDetection LogLevel
	// RedundancyDetection covers ordering edges implied by other edges.
	RedundancyDetection LogLevel
}

// DefaultBuildSettings ignores ambiguities and redundant ordering and warns on redundant
// memberships.
func DefaultBuildSettings() BuildSettings {
	return BuildSettings{
		AmbiguityDetection:  Ignore,
		HierarchyDetection:  Warn,
		RedundancyDetection: Ignore,
	}
}

// ExecutorKind selects how a schedule runs its systems.
type ExecutorKind int

const (
	// MultiThreaded runs compatible systems concurrently.
	MultiThreaded ExecutorKind = iota
	// SingleThreaded runs systems one by one and applies deferred operations at the end.
	SingleThreaded
	// Simple runs systems one by one and applies deferred operations after each system.
	Simple
)

var executorNames = map[ExecutorKind]string{
	MultiThreaded:  "multi_threaded",
	SingleThreaded: "single_threaded",
	Simple:         "simple",
}

func (k ExecutorKind) String() string {
	if name, ok := executorNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ExecutorKind(%d)", int(k))
}

func (k *ExecutorKind) UnmarshalYAML(value *yaml.Node) error {
	for kind, name := range executorNames {
		if strings.EqualFold(value.Value, name) {
			*k = kind
			return nil
		}
	}
	return eris.Errorf("unknown executor %q at line %d", value.Value, value.Line)
}

func (k ExecutorKind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// Condition gates a system or a set for one run. It must not change the world.
type Condition func(w *World) bool

// graphInfo holds the edges declared from one node.
type graphInfo struct {
	sets             []string
	before           []string
	after            []string
	ambiguousWith    []string
	ambiguousWithAll bool
	conditions       []Condition
}

// SystemConfig is a system with the edges declared for it.
type SystemConfig struct {
	system System
	info   graphInfo
}

// Configure starts a configuration for sys.
func Configure(sys System) *SystemConfig {
	return &SystemConfig{system: sys}
}

// InSet adds the system to the set named label.
func (c *SystemConfig) InSet(label string) *SystemConfig {
	c.info.sets = append(c.info.sets, label)
	return c
}

// Before orders the system before every system that answers to label.
func (c *SystemConfig) Before(label string) *SystemConfig {
	c.info.before = append(c.info.before, label)
	return c
}

// After orders the system after every system that answers to label.
func (c *SystemConfig) After(label string) *SystemConfig {
	c.info.after = append(c.info.after, label)
	return c
}

// AmbiguousWith accepts conflicting access with label when no order is declared.
func (c *SystemConfig) AmbiguousWith(label string) *SystemConfig {
	c.info.ambiguousWith = append(c.info.ambiguousWith, label)
	return c
}

// AmbiguousWithAll accepts conflicting access with every unordered system.
func (c *SystemConfig) AmbiguousWithAll() *SystemConfig {
	c.info.ambiguousWithAll = true
	return c
}

// RunIf skips the system on runs where cond is false.
func (c *SystemConfig) RunIf(cond Condition) *SystemConfig {
	c.info.conditions = append(c.info.conditions, cond)
	return c
}

// SetConfig is a system set with the edges declared for it.
type SetConfig struct {
	label string
	base  bool
	info  graphInfo
}

// Set starts a configuration for the set named label.
func Set(label string) *SetConfig {
	return &SetConfig{label: label}
}

// InSet nests the set in the set named label.
func (c *SetConfig) InSet(label string) *SetConfig {
	c.info.sets = append(c.info.sets, label)
	return c
}

// Before orders every member before every system that answers to label.
func (c *SetConfig) Before(label string) *SetConfig {
	c.info.before = append(c.info.before, label)
	return c
}

// After orders every member after every system that answers to label.
func (c *SetConfig) After(label string) *SetConfig {
	c.info.after = append(c.info.after, label)
	return c
}

// AmbiguousWith accepts conflicting access between members and label.
func (c *SetConfig) AmbiguousWith(label string) *SetConfig {
	c.info.ambiguousWith = append(c.info.ambiguousWith, label)
	return c
}

// RunIf skips every member on runs where cond is false.
func (c *SetConfig) RunIf(cond Condition) *SetConfig {
	c.info.conditions = append(c.info.conditions, cond)
	return c
}

// Base marks the set as a base set. A system may belong to at most one base set.
func (c *SetConfig) Base() *SetConfig {
	c.base = true
	return c
}

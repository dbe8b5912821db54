// Package manifest handles kettle.toml (or kettle.yaml) VM configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/kettle/vm"
	"gopkg.in/yaml.v3"
)

// ErrNoManifest is returned by Load when dir holds no manifest file.
var ErrNoManifest = errors.New("no kettle manifest")

// File names searched for, in order.
var fileNames = []string{"kettle.toml", "kettle.yaml", "kettle.yml"}

// Manifest represents a kettle.toml configuration.
type Manifest struct {
	Project    Project          `toml:"project" yaml:"project"`
	Heap       HeapConfig       `toml:"heap" yaml:"heap"`
	Stack      StackConfig      `toml:"stack" yaml:"stack"`
	IO         IOConfig         `toml:"io" yaml:"io"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Transcript TranscriptConfig `toml:"transcript" yaml:"transcript"`
	Image      ImageConfig      `toml:"image" yaml:"image"`

	// Dir is the directory containing the manifest (set at load time).
	Dir string `toml:"-" yaml:"-"`
	// Path is the manifest file itself (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
}

// HeapConfig sizes the managed heap.
type HeapConfig struct {
	Capacity int `toml:"capacity" yaml:"capacity"`
}

// StackConfig bounds each thread's operand stack.
type StackConfig struct {
	MaxDepth int `toml:"max-depth" yaml:"max-depth"`
}

// IOConfig configures the host I/O surface.
type IOConfig struct {
	WritePolicy string `toml:"write-policy" yaml:"write-policy"`
}

// LogConfig configures commonlog verbosity.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
	Trace     bool   `toml:"trace" yaml:"trace"`
}

// TranscriptConfig enables recording of host writes to SQLite.
type TranscriptConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// ImageConfig names the default image and entry method.
type ImageConfig struct {
	Path  string `toml:"path" yaml:"path"`
	Entry string `toml:"entry" yaml:"entry"`
}

// Default returns the configuration used when no manifest exists.
func Default() *Manifest {
	def := vm.DefaultConfig()
	m := &Manifest{}
	m.Heap.Capacity = def.HeapCapacity
	m.Stack.MaxDepth = def.MaxStack
	m.IO.WritePolicy = def.Policy.String()
	m.Image.Entry = "main"
	return m
}

// Load parses the manifest found in the given directory.
func Load(dir string) (*Manifest, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("%w (%s) in %s", ErrNoManifest, strings.Join(fileNames, ", "), dir)
}

// LoadFile parses a manifest file; the format follows the extension.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, m)
	default:
		err = toml.Unmarshal(data, m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m.Dir = filepath.Dir(m.Path)

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a manifest, then loads and
// returns it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (m *Manifest) Validate() error {
	if m.Heap.Capacity <= 0 {
		return fmt.Errorf("heap.capacity must be positive, got %d", m.Heap.Capacity)
	}
	if m.Stack.MaxDepth <= 0 {
		return fmt.Errorf("stack.max-depth must be positive, got %d", m.Stack.MaxDepth)
	}
	if _, err := vm.ParseWritePolicy(m.IO.WritePolicy); err != nil {
		return fmt.Errorf("io.write-policy: %w", err)
	}
	return nil
}

// VMConfig converts the manifest into a vm.Config writing to io.
func (m *Manifest) VMConfig(io vm.HostIO) (vm.Config, error) {
	policy, err := vm.ParseWritePolicy(m.IO.WritePolicy)
	if err != nil {
		return vm.Config{}, err
	}
	return vm.Config{
		HeapCapacity: m.Heap.Capacity,
		MaxStack:     m.Stack.MaxDepth,
		Policy:       policy,
		IO:           io,
	}, nil
}

// resolve returns p relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// TranscriptPath returns the transcript database path, or "" if disabled.
func (m *Manifest) TranscriptPath() string {
	return m.resolve(m.Transcript.Path)
}

// ImagePath returns the default image path, or "" if unset.
func (m *Manifest) ImagePath() string {
	return m.resolve(m.Image.Path)
}

// LogFilePath returns the log file path, or "" for stderr.
func (m *Manifest) LogFilePath() string {
	return m.resolve(m.Log.File)
}

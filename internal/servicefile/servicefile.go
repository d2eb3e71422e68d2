// Package servicefile reads and writes the YAML file that lists the services
// the supervisor manages.
//
//	services:
//	  linebot:
//	    command: [python, main.py]
//	    port: 8888
//	    cwd: line_bot_ai
//	    max_instances: 3
package servicefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jiujiugas/gasops/internal/fileutil"
)

// DefaultName is the services file name used when none is configured.
const DefaultName = "gasops-services.yaml"

// Service is one entry of the file. Zero values mean "use the default".
// Bare numbers are seconds for the intervals and milliseconds for
// response_time_limit.
type Service struct {
	Command            []string          `yaml:"command"`
	Port               int               `yaml:"port"`
	Cwd                string            `yaml:"cwd,omitempty"`
	Env                map[string]string `yaml:"env,omitempty"`
	MaxInstances       int               `yaml:"max_instances,omitempty"`
	MinInstances       int               `yaml:"min_instances,omitempty"`
	HealthInterval     Seconds           `yaml:"health_check_interval,omitempty"`
	RestartDelay       Seconds           `yaml:"restart_delay,omitempty"`
	MemoryLimitMB      float64           `yaml:"memory_limit_mb,omitempty"`
	CPUThreshold       float64           `yaml:"cpu_threshold,omitempty"`
	ResponseTimeLimit  Millis            `yaml:"response_time_limit,omitempty"`
	PersistentDataPath string            `yaml:"persistent_data_path,omitempty"`
}

// File is the whole document.
type File struct {
	Services map[string]Service `yaml:"services"`
}

// Names returns the service names sorted.
func (f File) Names() []string {
	names := make([]string, 0, len(f.Services))
	for n := range f.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load parses the file at path. Relative cwd and persistent_data_path
// entries are resolved against the file's directory.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		return File{}, fmt.Errorf("read services file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("parse %s: %w", path, err)
	}
	f.resolve(filepath.Dir(path))
	return f, nil
}

// Parse decodes a services document. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("decode yaml: %w", err)
	}
	if len(f.Services) == 0 {
		return File{}, errors.New("no services defined")
	}
	return f, nil
}

func (f File) resolve(base string) {
	for name, s := range f.Services {
		if s.Cwd != "" && !filepath.IsAbs(s.Cwd) {
			s.Cwd = filepath.Join(base, s.Cwd)
		}
		if s.PersistentDataPath != "" && !filepath.IsAbs(s.PersistentDataPath) {
			s.PersistentDataPath = filepath.Join(base, s.PersistentDataPath)
		}
		f.Services[name] = s
	}
}

// Save writes f to path atomically. An existing file is first copied to
// path+".bak".
func Save(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode services file: %w", err)
	}
	if _, err := fileutil.Backup(path); err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write services file: %w", err)
	}
	return nil
}

// Default returns the stock service set: the Next.js front end, the LINE
// bot backend and the voice service. Paths are relative to the file.
// Instance n of a service listens on port+n, so the bot keeps a single
// instance to leave 8889 to the voice service. The bot runs from
// line_bot_ai so it picks up the .env file there.
func Default() File {
	return File{Services: map[string]Service{
		"nextjs": {
			Command:            []string{"npm", "run", "dev"},
			Port:               9999,
			MaxInstances:       2,
			MinInstances:       1,
			MemoryLimitMB:      1024,
			CPUThreshold:       80,
			PersistentDataPath: "data/nextjs",
		},
		"linebot": {
			Command:            []string{"gasops", "bot", "serve"},
			Port:               8888,
			Cwd:                "line_bot_ai",
			MaxInstances:       1,
			MinInstances:       1,
			MemoryLimitMB:      512,
			CPUThreshold:       70,
			PersistentDataPath: "data/linebot",
		},
		"voice": {
			Command:            []string{"python", "instant_voice_test.py"},
			Port:               8889,
			Cwd:                "line_bot_ai",
			MaxInstances:       2,
			MinInstances:       1,
			MemoryLimitMB:      256,
			CPUThreshold:       60,
			PersistentDataPath: "data/voice",
		},
	}}
}

// LoadOrCreate loads path, writing Default there first when it does not
// exist. created reports whether the file was written.
func LoadOrCreate(path string) (f File, created bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if err := Save(path, Default()); err != nil {
			return File{}, false, err
		}
		created = true
	}
	f, err = Load(path)
	return f, created, err
}

// Package config loads and validates the daemon's YAML configuration and
// converts it into the runtime healer.ProcessSpec values the rest of the
// daemon consumes. It depends on package healer (for ToSpecs' return type),
// never the reverse.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openhealer/healer/healer"
)

// Config is the top-level YAML document.
type Config struct {
	LogLevel         string        `yaml:"log_level"`
	LogDirectory     string        `yaml:"log_directory"`
	PIDFileDirectory string        `yaml:"pid_file_directory"`
	WorkingDirectory string        `yaml:"working_directory"`
	Processes        []ProcessSpec `yaml:"processes"`

	// Dependencies is parsed so a config written against the richer
	// dependency-coordinator draft still loads cleanly, but it is never
	// consulted: the coordinator it describes is unimplemented here, same
	// as in the system this was modeled on.
	Dependencies []map[string]any `yaml:"dependencies,omitempty"`
}

// ProcessSpec is one entry under processes:.
type ProcessSpec struct {
	Name      string        `yaml:"name"`
	Enabled   *bool         `yaml:"enabled"`
	Command   string        `yaml:"command"`
	Args      []string      `yaml:"args"`
	RunAsRoot bool          `yaml:"run_as_root"`
	RunAsUser string        `yaml:"run_as_user"`
	Monitor   MonitorSpec   `yaml:"monitor"`
	Recovery  RecoverySpec  `yaml:"recovery"`
}

// RecoverySpec mirrors healer.RecoverySpec in wire units (whole seconds).
type RecoverySpec struct {
	Retries         uint32 `yaml:"retries"`
	RetryWindowSecs uint32 `yaml:"retry_window_secs"`
	CooldownSecs    uint32 `yaml:"cooldown_secs"`
}

// MonitorSpec is the YAML tagged union: `type:` selects the variant, and
// the remaining fields are interpreted accordingly. Load's validation
// rejects unknown types, since the wire format has no sensible default
// variant.
type MonitorSpec struct {
	Type string `yaml:"type"`

	PIDFilePath  string `yaml:"pid_file_path"`
	IntervalSecs uint32 `yaml:"interval_secs"`

	URL         string `yaml:"url"`
	TimeoutSecs uint32 `yaml:"timeout_secs"`

	ProcessName string `yaml:"process_name"`
}

const (
	monitorTypePid     = "pid"
	monitorTypeNetwork = "network"
	monitorTypeEbpf    = "ebpf"
)

// Load reads and parses the YAML document at path and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "validating config %s", path)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.LogDirectory == "" {
		return errors.New("log_directory is required")
	}
	if c.PIDFileDirectory == "" {
		return errors.New("pid_file_directory is required")
	}
	if c.WorkingDirectory == "" {
		return errors.New("working_directory is required")
	}

	seen := make(map[string]bool, len(c.Processes))
	for i := range c.Processes {
		p := &c.Processes[i]
		if p.Name == "" {
			return fmt.Errorf("processes[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("processes[%d]: duplicate process name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Command == "" {
			return fmt.Errorf("process %q: command is required", p.Name)
		}
		if p.RunAsRoot && p.RunAsUser != "" {
			return fmt.Errorf("process %q: run_as_root and run_as_user are mutually exclusive", p.Name)
		}

		switch p.Monitor.Type {
		case monitorTypePid:
			if p.Monitor.PIDFilePath == "" {
				return fmt.Errorf("process %q: monitor.pid_file_path is required for type pid", p.Name)
			}
		case monitorTypeNetwork:
			if p.Monitor.URL == "" {
				return fmt.Errorf("process %q: monitor.url is required for type network", p.Name)
			}
		case monitorTypeEbpf:
			if p.Monitor.ProcessName == "" {
				return fmt.Errorf("process %q: monitor.process_name is required for type ebpf", p.Name)
			}
		default:
			return fmt.Errorf("process %q: unknown monitor type %q", p.Name, p.Monitor.Type)
		}
	}

	return nil
}

// ToSpecs converts the validated config into runtime healer.ProcessSpec
// values. Load must have succeeded (and hence validate) before this is
// called; it does not re-validate.
func (c *Config) ToSpecs() []healer.ProcessSpec {
	specs := make([]healer.ProcessSpec, 0, len(c.Processes))
	for _, p := range c.Processes {
		specs = append(specs, healer.ProcessSpec{
			Name:      p.Name,
			Enabled:   p.Enabled == nil || *p.Enabled,
			Command:   p.Command,
			Args:      p.Args,
			RunAsRoot: p.RunAsRoot,
			RunAsUser: p.RunAsUser,
			Monitor:   p.Monitor.toHealerSpec(),
			Recovery:  p.Recovery.toHealerSpec(),
		})
	}
	return specs
}

func (m MonitorSpec) toHealerSpec() healer.MonitorSpec {
	switch m.Type {
	case monitorTypePid:
		return healer.PidMonitorSpec{
			PIDFilePath: m.PIDFilePath,
			Interval:    secondsOrDefault(m.IntervalSecs, 5),
		}
	case monitorTypeNetwork:
		return healer.NetworkMonitorSpec{
			URL:      m.URL,
			Interval: secondsOrDefault(m.IntervalSecs, 10),
			Timeout:  secondsOrDefault(m.TimeoutSecs, 3),
		}
	case monitorTypeEbpf:
		return healer.EbpfMonitorSpec{ProcessName: m.ProcessName}
	default:
		// validate() rejects this before toHealerSpec is ever reached.
		return nil
	}
}

func (r RecoverySpec) toHealerSpec() healer.RecoverySpec {
	def := healer.DefaultRecoverySpec()

	retries := r.Retries
	if retries == 0 {
		retries = def.Retries
	}

	return healer.RecoverySpec{
		Retries:     retries,
		RetryWindow: secondsOrDefault(r.RetryWindowSecs, uint32(def.RetryWindow/time.Second)),
		Cooldown:    secondsOrDefault(r.CooldownSecs, uint32(def.Cooldown/time.Second)),
	}
}

func secondsOrDefault(secs uint32, fallback uint32) time.Duration {
	if secs == 0 {
		secs = fallback
	}
	return time.Duration(secs) * time.Second
}

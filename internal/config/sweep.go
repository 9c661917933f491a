package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sweep is a base configuration plus a list of partial overrides. Each
// override yields one run.
type Sweep struct {
	Base    Config      `yaml:"base"`
	Changes []yaml.Node `yaml:"changes"`
}

// LoadSweep reads a sweep file.
func LoadSweep(path string) (*Sweep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sweep file: %w", err)
	}
	return ParseSweep(data)
}

// ParseSweep decodes a sweep document; the base starts from Default().
func ParseSweep(data []byte) (*Sweep, error) {
	s := &Sweep{Base: *Default()}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing sweep: %w", err)
	}
	return s, nil
}

// Expand merges every change onto a copy of the base. An empty change list
// yields the base alone. Runs are named <base name>-<index> unless the
// change sets a name.
func (s *Sweep) Expand() ([]*Config, error) {
	if len(s.Changes) == 0 {
		return []*Config{s.Base.Clone()}, nil
	}
	out := make([]*Config, 0, len(s.Changes))
	for i := range s.Changes {
		cfg := s.Base.Clone()
		cfg.Name = fmt.Sprintf("%s-%d", s.Base.Name, i)
		if err := s.Changes[i].Decode(cfg); err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is an interview definition kept in a YAML file so long job
// descriptions don't have to live in the environment.
type Profile struct {
	JobDescription string `yaml:"job_description"`
	SessionID      string `yaml:"session_id"`
}

// LoadProfile reads and parses an interview profile
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return &p, nil
}

// ApplyProfile overlays the profile named by ProfilePath, if any.
// Non-empty profile fields win over the environment.
func (c *Config) ApplyProfile() error {
	if c.ProfilePath == "" {
		return nil
	}

	p, err := LoadProfile(c.ProfilePath)
	if err != nil {
		return err
	}
	if p.JobDescription != "" {
		c.JobDescription = p.JobDescription
	}
	if p.SessionID != "" {
		c.SessionID = p.SessionID
	}
	return nil
}

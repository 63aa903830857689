package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// profile is the optional --config/--profile YAML document. Every field
// is a hint: a zero value falls back to the component's own default
// rather than failing startup, matching the environment variables'
// "absence must not crash initialization" contract.
type profile struct {
	Name              string `yaml:"name"`
	MaxActiveTasks    int    `yaml:"max_active_tasks"`
	MaxActiveThoughts int    `yaml:"max_active_thoughts"`
	BatchSize         int    `yaml:"batch_size"`
	HomeChannel       string `yaml:"home_channel"`
	LLMBaseURL        string `yaml:"llm_base_url"`
	LLMModel          string `yaml:"llm_model"`
}

func loadProfile(path string) (profile, error) {
	var p profile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

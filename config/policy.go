package config

import (
	"fmt"
	"os"

	"github.com/target/mmk-media-jobs/internal/domain/model"
	"gopkg.in/yaml.v3"
)

// policyFile is the YAML layout of POLICY_FILE:
//
//	policies:
//	  reconstruction:
//	    max_retries: 3
//	    timeout: 1h
//	    default_priority: default
//	    retry_delays: [60s, 120s, 300s]
//	    command: /opt/pipelines/reconstruct
//	    args: ["--gpu"]
type policyFile struct {
	Policies map[model.JobType]model.PolicyOverride `yaml:"policies"`
}

// LoadPolicies returns the built-in policy table overlaid with the entries of the YAML file at
// path. An empty path returns the defaults.
func LoadPolicies(path string) (model.PolicyTable, error) {
	base := model.DefaultPolicies()
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(raw)
}

// ParsePolicies overlays the YAML document raw onto the built-in policy table.
func ParsePolicies(raw []byte) (model.PolicyTable, error) {
	var doc policyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	merged := model.DefaultPolicies().Merge(doc.Policies)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/orchestrator-core/internal/policy"
)

// loadPolicyRules reads the static ToolPolicy table from a YAML file. An
// empty path is valid and yields no rules — every tool call is then
// rejected as UnknownTool, which is the safe default for a freshly
// installed core with no policy file configured yet.
func loadPolicyRules(path string) ([]policy.ToolRule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy rules %s: %w", path, err)
	}
	var rules []policy.ToolRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse policy rules %s: %w", path, err)
	}
	return rules, nil
}

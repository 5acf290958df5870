package gdpull

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// PullRules is the configuration loaded from the --rules flag.
// The first rule whose When matches decides; files matching no rule are pulled.
type PullRules struct {
	Rules []*PullRule `yaml:"rules"`
}

// PullRule defines whether matching files are skipped.
// When is a CEL expression over `file` and `folder`.
type PullRule struct {
	When ExprOrBool `yaml:"when"`
	Skip bool       `yaml:"skip,omitempty"`
}

// LoadPullRules loads and validates rules from a YAML file.
func LoadPullRules(path string, env *CELEnv) (*PullRules, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()
	return ParsePullRules(f, env)
}

// ParsePullRules parses and validates rules from a reader.
func ParsePullRules(r io.Reader, env *CELEnv) (*PullRules, error) {
	var cfg PullRules
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := cfg.Bind(env); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Bind validates and binds CEL expressions in the rules.
func (c *PullRules) Bind(env *CELEnv) error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	for i, rule := range c.Rules {
		if rule.When.Raw() == "" {
			return fmt.Errorf("rule[%d]: when is required", i)
		}
		if err := rule.When.Bind(env); err != nil {
			return fmt.Errorf("rule[%d].when: %w", i, err)
		}
	}
	return nil
}

// Match finds the first matching rule. Returns nil if no rule matches.
func (c *PullRules) Match(in *RuleInput) (*PullRule, error) {
	for _, rule := range c.Rules {
		matched, err := rule.When.Eval(in)
		if err != nil {
			return nil, err
		}
		if matched {
			return rule, nil
		}
	}
	return nil, nil
}

// ShouldSkip reports whether file is excluded by the rules.
func (c *PullRules) ShouldSkip(file *RemoteFile, folder *FolderRef) (bool, error) {
	rule, err := c.Match(&RuleInput{
		File:   convertEventFile(file),
		Folder: convertEventFolder(folder),
	})
	if err != nil {
		return false, err
	}
	return rule != nil && rule.Skip, nil
}

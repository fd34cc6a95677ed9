package intent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Sori-Labs/sori-go-sdk/models"
)

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRuleFile reads operator-defined matcher rules from a YAML file. The
// returned rules are meant to be prepended to the builtin table via
// Matcher.Reload so site-specific vocabulary takes precedence.
func LoadRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	for i := range rf.Rules {
		if err := validateRule(&rf.Rules[i], i); err != nil {
			return nil, fmt.Errorf("rules file %s: %w", path, err)
		}
	}
	return rf.Rules, nil
}

func validateRule(r *Rule, idx int) error {
	if r.Name == "" {
		r.Name = fmt.Sprintf("custom-%d", idx)
	}
	if len(r.Keywords) == 0 {
		return fmt.Errorf("rule %q has no keywords", r.Name)
	}
	if !models.ValidIntent(r.Intent) {
		return fmt.Errorf("rule %q has unknown intent %q", r.Name, r.Intent)
	}
	if r.Confidence <= 0 || r.Confidence > 1 {
		return fmt.Errorf("rule %q has confidence %v outside (0,1]", r.Name, r.Confidence)
	}
	return nil
}

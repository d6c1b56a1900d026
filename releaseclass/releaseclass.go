// Package releaseclass derives a Release's environment classification
// from an ordered list of tag-pattern rules, resolving the Open Question
// in spec.md §9: the mapping from tag pattern to production/staging/other
// is deployment-specific and must be configurable, not hard-coded.
package releaseclass

import (
	"regexp"

	"github.com/devlens/enginemetrics/config"
	"github.com/devlens/enginemetrics/errkind"
	"github.com/devlens/enginemetrics/model"
)

// Rule is one compiled {pattern, environment} entry.
type Rule struct {
	Pattern     *regexp.Regexp
	Environment model.Environment
}

// Classifier evaluates an ordered rule list, first-match-wins, falling
// back to "other" when nothing matches.
type Classifier struct {
	rules []Rule
}

// Compile builds a Classifier from the raw config rules.
func Compile(rules []config.ReleaseClassificationRule) (*Classifier, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, errkind.New(errkind.ConfigError, "releaseclass.Compile", err)
		}
		compiled = append(compiled, Rule{Pattern: re, Environment: model.Environment(r.Environment)})
	}
	return &Classifier{rules: compiled}, nil
}

// Classify returns the environment for tag, or model.EnvOther if no rule
// matches.
func (c *Classifier) Classify(tag string) model.Environment {
	for _, r := range c.rules {
		if r.Pattern.MatchString(tag) {
			return r.Environment
		}
	}
	return model.EnvOther
}

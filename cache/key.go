// Package cache implements C6's two-tier artifact cache: an in-process
// memory tier and a cold ArtifactStore (file or Redis) holding the
// binary artifacts a collection job produces. Key derivation mirrors
// the range-spec grammar a caller already validated at the HTTP edge.
package cache

import (
	"fmt"
	"regexp"

	"github.com/devlens/enginemetrics/model"
)

var dayRangeRe = regexp.MustCompile(`^\d+d$`)
var quarterRe = regexp.MustCompile(`^Q[1-4]-\d{4}$`)
var yearRe = regexp.MustCompile(`^\d{4}$`)
var explicitRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}:\d{4}-\d{2}-\d{2}$`)

// ValidRangeSpec reports whether spec matches one of the grammar's four
// forms.
func ValidRangeSpec(spec string) bool {
	return dayRangeRe.MatchString(spec) || quarterRe.MatchString(spec) || yearRe.MatchString(spec) || explicitRe.MatchString(spec)
}

// Key derives the cache/artifact file name from a range-spec and
// environment. defaultEnv is suppressed from the name; any other
// environment is appended as a suffix (e.g. "metrics_90d_uat").
func Key(rangeSpec string, env model.Environment, defaultEnv model.Environment) string {
	base := "metrics_" + rangeSpec
	if env != defaultEnv && env != "" {
		base += "_" + string(env)
	}
	return base
}

// ScopeKey derives the key for a per-team or per-person scoped artifact.
func ScopeKey(base, scope string) string {
	return fmt.Sprintf("%s.%s", base, scope)
}

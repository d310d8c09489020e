package domain

import (
	"fmt"
	"regexp"
)

// AssessmentPeriod tags a filing with the assessment year it covers, e.g.
// "2025-26". One filing exists per (owner, period) unless explicitly reopened.
type AssessmentPeriod string

var periodPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ParseAssessmentPeriod validates the "YYYY-YY" form.
func ParseAssessmentPeriod(s string) (AssessmentPeriod, error) {
	if !periodPattern.MatchString(s) {
		return "", fmt.Errorf("assessment period must be in YYYY-YY form, got %q", s)
	}
	return AssessmentPeriod(s), nil
}

func (p AssessmentPeriod) String() string { return string(p) }

func (p AssessmentPeriod) IsNil() bool { return p == "" }

package domain

import "fmt"

// FormType identifies which return-form variant a filing is made on.
// Invariant: the value must be one of the supported forms.
//
// Usage: construct via ParseFormType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type FormType string

// Supported return forms. The set is closed: the export builder registry and
// the snapshot extractor both key off these values.
const (
	FormTypeITR1 FormType = "ITR-1"
	FormTypeITR2 FormType = "ITR-2"
	FormTypeITR3 FormType = "ITR-3"
	FormTypeITR4 FormType = "ITR-4"
)

// validFormTypes is the single source of truth for supported forms.
var validFormTypes = map[FormType]bool{
	FormTypeITR1: true,
	FormTypeITR2: true,
	FormTypeITR3: true,
	FormTypeITR4: true,
}

// ParseFormType constructs a FormType from external input.
func ParseFormType(s string) (FormType, error) {
	f := FormType(s)
	if !validFormTypes[f] {
		return "", fmt.Errorf("unsupported form type: %s", s)
	}
	return f, nil
}

func (f FormType) String() string { return string(f) }

// IsBusiness reports whether the form covers business or professional income,
// which widens the material snapshot to turnover figures.
func (f FormType) IsBusiness() bool {
	return f == FormTypeITR3 || f == FormTypeITR4
}

// SupportedFormTypes returns all supported forms in a stable order.
func SupportedFormTypes() []FormType {
	return []FormType{FormTypeITR1, FormTypeITR2, FormTypeITR3, FormTypeITR4}
}

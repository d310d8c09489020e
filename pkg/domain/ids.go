package domain

import (
	"github.com/google/uuid"

	dErrors "taxfiling/pkg/domain-errors"
)

// Typed IDs prevent accidental cross-assignment between aggregates. Construct
// via the Parse helpers at trust boundaries; direct casting bypasses
// validation and is reserved for code that already holds a valid uuid.
type (
	UserID   uuid.UUID
	FilingID uuid.UUID
	DraftID  uuid.UUID
)

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id FilingID) String() string { return uuid.UUID(id).String() }
func (id DraftID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id FilingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DraftID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

// ParseFilingID validates and returns a FilingID.
func ParseFilingID(s string) (FilingID, error) {
	u, err := parseUUID(s, "filing id")
	return FilingID(u), err
}

// ParseDraftID validates and returns a DraftID.
func ParseDraftID(s string) (DraftID, error) {
	u, err := parseUUID(s, "draft id")
	return DraftID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be the nil UUID")
	}
	return u, nil
}

package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Status represents invoice lifecycle states. The set is closed.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusViewed  Status = "viewed"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusVoid    Status = "void"
)

var allStatuses = []Status{
	StatusDraft,
	StatusSent,
	StatusViewed,
	StatusPaid,
	StatusOverdue,
	StatusVoid,
}

func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s Status) Valid() bool {
	for _, candidate := range allStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus accepts only the canonical lowercase names.
func ParseStatus(raw string) (Status, error) {
	status := Status(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return status, nil
}

// Scan refuses to load unknown values from storage.
func (s *Status) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		return fmt.Errorf("%w: null", ErrUnknownStatus)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrUnknownStatus, value)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
	return string(s), nil
}

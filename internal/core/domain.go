package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	// MaxDescriptionLen bounds transaction descriptions.
	MaxDescriptionLen = 500
	// MaxLabelLen bounds category and tag names.
	MaxLabelLen = 50
)

type (
	// Kind distinguishes money coming in from money going out.
	Kind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single income or expense record. Category is
	// optional (zero or one per transaction), Tags hold any number of
	// free-form labels.
	Transaction struct {
		ID          int64
		Date        Date
		Description string
		Amount      Money
		Kind        Kind
		Category    string // empty means uncategorized
		Tags        []string
	}
)

// Sentinel errors for taxonomy and transaction operations. Callers match
// with errors.Is; the HTTP layer maps them to status codes.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)

var (
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidKind      = fmt.Errorf("%w: kind must be income or expense", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
	ErrEmptyLabel       = fmt.Errorf("%w: empty label name", ErrValidation)
	ErrLabelTooLong     = fmt.Errorf("%w: label name too long (max %d characters)", ErrValidation, MaxLabelLen)
	ErrLabelCharset     = fmt.Errorf("%w: label name may contain only lowercase letters, digits, hyphens and spaces", ErrValidation)
)

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrValidation)
	}
	return nil
}

// NewDate creates a Date pinned to midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses the YYYY-MM-DD format used on the wire and in CSV files.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q (want YYYY-MM-DD)", ErrValidation, s)
	}
	return Date{Time: t.UTC()}, nil
}

// String renders the wire format (YYYY-MM-DD).
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// MonthKey is the YYYY-MM bucket used by the monthly breakdown.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeLabel trims and lowercases a label name. Validation happens
// separately so callers can report what was wrong with the raw input.
func NormalizeLabel(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateLabelName checks a normalized category or tag name against the
// boundary rules: non-empty, max length, lowercase alphanumerics plus
// hyphen and space. Storage does not enforce this, so rename paths must
// re-validate here.
func ValidateLabelName(name string) error {
	if name == "" {
		return ErrEmptyLabel
	}
	if len(name) > MaxLabelLen {
		return ErrLabelTooLong
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == ' ':
		default:
			return ErrLabelCharset
		}
	}
	return nil
}

// NormalizeTags lowercases, trims, deduplicates and sorts a tag set.
// Empty entries are dropped; invalid names surface as an error.
func NormalizeTags(tags []string) ([]string, error) {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeLabel(t)
		if n == "" {
			continue
		}
		if err := ValidateLabelName(n); err != nil {
			return nil, fmt.Errorf("tag %q: %w", t, err)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// HasTag reports whether the transaction carries the given tag.
func (t Transaction) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, MaxDescriptionLen)
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.Category != "" {
		if err := ValidateLabelName(t.Category); err != nil {
			return fmt.Errorf("category: %w", err)
		}
	}
	for _, tag := range t.Tags {
		if err := ValidateLabelName(tag); err != nil {
			return fmt.Errorf("tag %q: %w", tag, err)
		}
	}
	return nil
}

package core

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-08")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.String() != "2025-03-08" || d.MonthKey() != "2025-03" {
		t.Fatalf("unexpected round-trip: %s / %s", d, d.MonthKey())
	}
	for _, bad := range []string{"", "08/03/2025", "2025-13-01", "yesterday"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q expected validation error, got %v", bad, err)
		}
	}
}

func TestValidateLabelName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"food", true},
		{"take-out", true},
		{"eating out", true},
		{"cat99", true},
		{"", false},
		{"Food", false},      // not normalized
		{"semi;colon", false},
		{"tab\tname", false},
		{string(make([]byte, MaxLabelLen+1)), false},
	}
	for _, tc := range cases {
		err := ValidateLabelName(tc.name)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.name, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%q expected error", tc.name)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%q error should wrap ErrValidation, got %v", tc.name, err)
			}
		}
	}
}

func TestNormalizeTags(t *testing.T) {
	got, err := NormalizeTags([]string{" Recurring ", "dining", "recurring", ""})
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	want := []string{"dining", "recurring"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, err := NormalizeTags([]string{"ok", "no_underscores"}); err == nil {
		t.Fatalf("expected error for invalid tag")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:        NewDate(2025, 1, 1),
		Description: "groceries",
		Amount:      Money{Cents: 12000},
		Kind:        Expense,
		Category:    "food",
		Tags:        []string{"recurring"},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Date: Date{}, Description: "a", Amount: Money{Cents: 1}, Kind: Expense},
		{Date: NewDate(2025, 1, 1), Description: "", Amount: Money{Cents: 1}, Kind: Expense},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 0}, Kind: Expense},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, Kind: "transfer"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, Kind: Expense, Category: "BAD!"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: Money{Cents: 1}, Kind: Income, Tags: []string{"ok", "Nope"}},
	}
	for i, tr := range bads {
		if err := tr.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestTransactionCategoryNeverInTags(t *testing.T) {
	tr := Transaction{
		Date:        NewDate(2025, 2, 10),
		Description: "lunch",
		Amount:      Money{Cents: 1500},
		Kind:        Expense,
		Category:    "food",
		Tags:        []string{"a", "b"},
	}
	if tr.HasTag("food") {
		t.Fatalf("category must not leak into the tag set")
	}
	if !tr.HasTag("a") || !tr.HasTag("b") {
		t.Fatalf("tags lost")
	}
}

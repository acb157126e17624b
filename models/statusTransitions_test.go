package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/utils"
)

func TestCanTransitionPayout(t *testing.T) {
	cases := []struct {
		from, to PayoutStatus
		want     bool
	}{
		{PayoutStatusSubmitted, PayoutStatusInProgress, true},
		{PayoutStatusSubmitted, PayoutStatusApproved, true},
		{PayoutStatusSubmitted, PayoutStatusRejected, true},
		{PayoutStatusSubmitted, PayoutStatusPaid, false},
		{PayoutStatusInProgress, PayoutStatusApproved, true},
		{PayoutStatusInProgress, PayoutStatusRejected, true},
		{PayoutStatusInProgress, PayoutStatusSubmitted, false},
		{PayoutStatusApproved, PayoutStatusPaid, true},
		{PayoutStatusApproved, PayoutStatusRejected, false},
		{PayoutStatusPaid, PayoutStatusSubmitted, false},
		{PayoutStatusRejected, PayoutStatusApproved, false},
		{PayoutStatusSubmitted, PayoutStatusSubmitted, false},
	}
	for _, tc := range cases {
		if got := CanTransitionPayout(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
	for _, s := range []PayoutStatus{PayoutStatusPaid, PayoutStatusRejected} {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestPayoutStatusSetsProcessedAt(t *testing.T) {
	want := map[PayoutStatus]bool{
		PayoutStatusSubmitted:  false,
		PayoutStatusInProgress: false,
		PayoutStatusApproved:   true,
		PayoutStatusPaid:       true,
		PayoutStatusRejected:   true,
	}
	for s, w := range want {
		if s.setsProcessedAt() != w {
			t.Fatalf("%s: setsProcessedAt = %v", s, !w)
		}
	}
}

func TestCanTransitionPeriod(t *testing.T) {
	cases := []struct {
		from, to PeriodStatus
		want     bool
	}{
		{PeriodStatusDraft, PeriodStatusActive, true},
		{PeriodStatusActive, PeriodStatusLocked, true},
		{PeriodStatusLocked, PeriodStatusActive, true},
		{PeriodStatusDraft, PeriodStatusLocked, false},
		{PeriodStatusLocked, PeriodStatusDraft, false},
		{PeriodStatusActive, PeriodStatusDraft, false},
	}
	for _, tc := range cases {
		if got := CanTransitionPeriod(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPeriodEnsureMutable(t *testing.T) {
	if err := (&Period{ID: "202405", Status: PeriodStatusActive}).EnsureMutable(); err != nil {
		t.Fatalf("active period must be mutable: %v", err)
	}
	err := (&Period{ID: "202405", Status: PeriodStatusLocked}).EnsureMutable()
	if !utils.IsConfigurationError(err) {
		t.Fatalf("locked period must return a configuration error, got %v", err)
	}
}

func TestValidateManualRate(t *testing.T) {
	for _, ok := range []string{"0.1", "0.92", "2"} {
		if err := ValidateManualRate(decimal.RequireFromString(ok)); err != nil {
			t.Fatalf("%s should be accepted: %v", ok, err)
		}
	}
	for _, bad := range []string{"0", "0.09", "2.01", "-1"} {
		if err := ValidateManualRate(decimal.RequireFromString(bad)); !utils.IsValidationError(err) {
			t.Fatalf("%s should be rejected, got %v", bad, err)
		}
	}
}

func TestNewPeriodValidate(t *testing.T) {
	rate := decimal.RequireFromString("0.92")
	badRate := decimal.RequireFromString("5")
	cases := []struct {
		name    string
		input   NewPeriod
		wantErr bool
	}{
		{"valid", NewPeriod{Id: "202405", Year: 2024, Month: 5, UsdEurRate: &rate}, false},
		{"draft", NewPeriod{Id: "202405", Year: 2024, Month: 5, Status: PeriodStatusDraft}, false},
		{"mismatched month", NewPeriod{Id: "202405", Year: 2024, Month: 6}, true},
		{"bad id", NewPeriod{Id: "2024-5", Year: 2024, Month: 5}, true},
		{"locked on create", NewPeriod{Id: "202405", Year: 2024, Month: 5, Status: PeriodStatusLocked}, true},
		{"rate out of range", NewPeriod{Id: "202405", Year: 2024, Month: 5, UsdEurRate: &badRate}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNormalizeHandle(t *testing.T) {
	for in, want := range map[string]string{"@creator": "creator", "  creator ": "creator", " @x": "x"} {
		if got := normalizeHandle(in); got != want {
			t.Fatalf("normalizeHandle(%q) = %q, want %q", in, got, want)
		}
	}
}

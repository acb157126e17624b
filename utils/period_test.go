package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParsePeriodId(t *testing.T) {
	cases := []struct {
		in        string
		year      int
		month     int
		wantError bool
	}{
		{"202405", 2024, 5, false},
		{"202412", 2024, 12, false},
		{"202413", 0, 0, true},
		{"202400", 0, 0, true},
		{"2024-05", 0, 0, true},
		{"24051", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tc := range cases {
		year, month, err := ParsePeriodId(tc.in)
		if tc.wantError {
			if !IsValidationError(err) {
				t.Fatalf("%q: expected validation error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || year != tc.year || month != tc.month {
			t.Fatalf("%q: got %d %d %v", tc.in, year, month, err)
		}
	}
}

func TestFormatAndCurrentPeriodId(t *testing.T) {
	if got := FormatPeriodId(2024, 3); got != "202403" {
		t.Fatalf("FormatPeriodId = %q", got)
	}
	if got := CurrentPeriodId(time.Date(2025, time.November, 30, 23, 0, 0, 0, time.UTC)); got != "202511" {
		t.Fatalf("CurrentPeriodId = %q", got)
	}
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	for in, want := range map[string]string{"1.005": "1.01", "1.004": "1", "-1.005": "-1.01", "276": "276"} {
		if got := Round2(decimal.RequireFromString(in)); !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("Round2(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	nf := NewNotFoundError("period", "202405")
	if !IsNotFoundError(nf) || !errors.Is(nf, ErrorRecordNotFound) {
		t.Fatalf("not found error must match ErrorRecordNotFound")
	}
	if IsValidationError(nf) || IsConfigurationError(nf) {
		t.Fatalf("not found error matched another class")
	}
	if !IsConfigurationError(NewConfigurationError("locked")) || !IsTemporalError(NewTemporalError("later")) {
		t.Fatalf("constructors must produce their class")
	}
	busy := fmt.Errorf("recalculate: %w", NewBusyError("recalc:202405 is busy"))
	if !IsBusyError(busy) || IsConfigurationError(busy) {
		t.Fatalf("wrapped busy error must match only BusyError")
	}
}

func TestValidateStructPeriodIdTag(t *testing.T) {
	type input struct {
		PeriodId string `validate:"required,periodid"`
	}
	if err := ValidateStruct(&input{PeriodId: "202405"}); err != nil {
		t.Fatalf("valid period id rejected: %v", err)
	}
	if err := ValidateStruct(&input{PeriodId: "May"}); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateStructUsesJsonNames(t *testing.T) {
	type input struct {
		PeriodId string `json:"period_id" validate:"required,periodid"`
		Amount   int    `json:"amount,omitempty" validate:"gte=0"`
	}
	err := ValidateStruct(&input{PeriodId: "2024", Amount: -1})
	want := "invalid input: amount failed gte, period_id failed periodid"
	if err == nil || err.Error() != want {
		t.Fatalf("got %v, want %q", err, want)
	}
}

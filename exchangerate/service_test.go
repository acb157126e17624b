package exchangerate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trend4media/billing_backend/models"
	"github.com/trend4media/billing_backend/utils"
)

func rateServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testService(primary string, backup string) *Service {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	return NewServiceWithURLs(primary, backup, 2*time.Second).WithClock(fixedClock(now), time.UTC)
}

func TestGetMonthlyRatePrimary(t *testing.T) {
	var backupHits int32
	primary := rateServer(t, http.StatusOK, `{"base":"USD","rates":{"EUR":0.9234,"GBP":0.79}}`, nil)
	backup := rateServer(t, http.StatusOK, `{"rates":{"EUR":0.95}}`, &backupHits)

	result, err := testService(primary.URL, backup.URL).GetMonthlyRate(context.Background(), 2024, 5)
	if err != nil {
		t.Fatalf("GetMonthlyRate: %v", err)
	}
	if result.Source != models.RateSourcePrimary || !result.Rate.Equal(decimal.RequireFromString("0.9234")) {
		t.Fatalf("unexpected result %+v", result)
	}
	want := time.Date(2024, time.May, 6, 12, 0, 0, 0, time.UTC)
	if !result.RateDate.Equal(want) {
		t.Fatalf("rate date = %s, want %s", result.RateDate, want)
	}
	if atomic.LoadInt32(&backupHits) != 0 {
		t.Fatalf("backup must not be called when primary succeeds")
	}
}

func TestGetMonthlyRateFallsBackToBackup(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"primary http error", http.StatusInternalServerError, `oops`},
		{"primary insane rate", http.StatusOK, `{"rates":{"EUR":1.5}}`},
		{"primary missing EUR", http.StatusOK, `{"rates":{"GBP":0.8}}`},
		{"primary bad json", http.StatusOK, `{"rates":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			primary := rateServer(t, tc.status, tc.body, nil)
			backup := rateServer(t, http.StatusOK, `{"rates":{"EUR":0.91}}`, nil)

			result, err := testService(primary.URL, backup.URL).GetMonthlyRate(context.Background(), 2024, 5)
			if err != nil {
				t.Fatalf("GetMonthlyRate: %v", err)
			}
			if result.Source != models.RateSourceBackup || !result.Rate.Equal(decimal.RequireFromString("0.91")) {
				t.Fatalf("unexpected result %+v", result)
			}
		})
	}
}

func TestGetMonthlyRateBothFail(t *testing.T) {
	primary := rateServer(t, http.StatusBadGateway, `down`, nil)
	backup := rateServer(t, http.StatusOK, `{"rates":{"EUR":0.5}}`, nil)

	_, err := testService(primary.URL, backup.URL).GetMonthlyRate(context.Background(), 2024, 5)
	var extErr *utils.ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if !extErr.FallbackRate.Equal(decimal.RequireFromString("0.92")) {
		t.Fatalf("fallback rate = %s", extErr.FallbackRate)
	}
	if len(extErr.Causes) != 2 {
		t.Fatalf("expected both causes, got %v", extErr.Causes)
	}
}

func TestGetMonthlyRateFutureInstant(t *testing.T) {
	var hits int32
	srv := rateServer(t, http.StatusOK, `{"rates":{"EUR":0.92}}`, &hits)
	svc := testService(srv.URL, srv.URL)

	// clock is 2024-06-01; June's instant is the 6th
	_, err := svc.GetMonthlyRate(context.Background(), 2024, 6)
	if !utils.IsTemporalError(err) {
		t.Fatalf("expected temporal error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("no source may be called before the rate instant")
	}
}

func TestGetMonthlyRateInvalidMonth(t *testing.T) {
	svc := testService("http://127.0.0.1:1", "http://127.0.0.1:1")
	for _, m := range []int{0, 13} {
		if _, err := svc.GetMonthlyRate(context.Background(), 2024, m); !utils.IsValidationError(err) {
			t.Fatalf("month %d: expected validation error, got %v", m, err)
		}
	}
}

func TestRateInstantUsesLocation(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	svc := NewServiceWithURLs("", "", time.Second).WithClock(time.Now, berlin)
	got := svc.RateInstant(2024, 1)
	if got.UTC() != time.Date(2024, time.January, 6, 11, 0, 0, 0, time.UTC) {
		t.Fatalf("RateInstant = %s", got.UTC())
	}
}

func TestIsSaneRate(t *testing.T) {
	for s, want := range map[string]bool{"0.7": true, "0.92": true, "1.3": true, "0.69": false, "1.31": false} {
		if got := IsSaneRate(decimal.RequireFromString(s)); got != want {
			t.Fatalf("IsSaneRate(%s) = %v", s, got)
		}
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(decimal.RequireFromString("0.92")); got != "1 USD = 0.920000 EUR" {
		t.Fatalf("FormatRate = %q", got)
	}
}

package exchangerate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPrimaryURL = "https://api.exchangerate-api.com/v4/latest/USD"
	defaultBackupURL  = "https://api.fxratesapi.com/latest?base=USD&symbols=EUR"
	userAgent         = "Trend4Media-Billing-System/1.0"
)

type rateClient struct {
	name string
	url  string
	http *http.Client
}

type latestRatesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

func newRateClient(name string, url string, timeout time.Duration) *rateClient {
	return &rateClient{
		name: name,
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// fetchEur returns the EUR quote of a USD-based latest-rates endpoint.
func (c *rateClient) fetchEur(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "fetchEur "+c.name, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	rate, err := c.doFetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return decimal.Zero, err
	}
	span.SetAttributes(attribute.String("rate.eur", rate.String()))
	return rate, nil
}

func (c *rateClient) doFetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("%s api error %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed latestRatesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	rate, ok := parsed.Rates["EUR"]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, errors.New(c.name + ": response has no EUR rate")
	}
	return rate, nil
}

func envOrDefault(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func timeoutFromEnv() time.Duration {
	if v := strings.TrimSpace(os.Getenv("EXCHANGE_RATE_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 10 * time.Second
}

// recalculate-period rebuilds the commission ledger for one period, optionally
// fetching the period exchange rate first.
//
// Usage:
//
//	DB_*=... [REDIS_ADDRESS=...] go run ./cmd/recalculate-period -period 202405 [-refresh-rate] [-force-rate]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/trend4media/billing_backend/config"
	"github.com/trend4media/billing_backend/exchangerate"
	"github.com/trend4media/billing_backend/utils"
	"github.com/trend4media/billing_backend/workflow"
)

func main() {
	periodID := flag.String("period", "", "Required: period id (YYYYMM)")
	refreshRate := flag.Bool("refresh-rate", false, "Fetch the monthly USD->EUR rate before calculating")
	forceRate := flag.Bool("force-rate", false, "Overwrite an existing period rate when refreshing")
	flag.Parse()

	id := strings.TrimSpace(*periodID)
	if err := utils.ValidatePeriodId(id); err != nil {
		fmt.Fprintf(os.Stderr, "--period: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "" {
		config.ConnectRedisWithRetry()
	}
	logger := config.GetLogger()
	ctx := utils.SetCorrelationIdInContext(context.Background(), "cli-recalculate-"+id)

	if *refreshRate {
		period, err := workflow.RefreshPeriodRate(ctx, exchangerate.NewService(), id, *forceRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rate refresh failed: %v\n", err)
			os.Exit(1)
		}
		if period.UsdEurRate != nil && period.RateSource != nil {
			logger.WithFields(logrus.Fields{"periodId": id, "source": *period.RateSource}).
				Info(exchangerate.FormatRate(*period.UsdEurRate))
		}
	}

	summary, err := workflow.CalculateAllCommissions(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recalculation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("period=%s revision=%d managers=%d total_eur=%s\n",
		summary.PeriodId, summary.Revision, summary.TotalManagers, summary.TotalCommissionEur.StringFixed(2))
	for component, total := range summary.ComponentBreakdown {
		fmt.Printf("  %-24s count=%-4d eur=%s\n", component, total.Count, total.TotalEur.StringFixed(2))
	}
}

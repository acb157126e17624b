package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ValidatePeriodId checks the YYYYMM key format.
func ValidatePeriodId(periodId string) error {
	if !periodIdPattern.MatchString(periodId) {
		return NewValidationError("invalid period id %q: expected YYYYMM", periodId)
	}
	return nil
}

// ParsePeriodId splits a YYYYMM key and checks the month range.
func ParsePeriodId(periodId string) (year int, month int, err error) {
	if err = ValidatePeriodId(periodId); err != nil {
		return 0, 0, err
	}
	year, _ = strconv.Atoi(periodId[:4])
	month, _ = strconv.Atoi(periodId[4:])
	if month < 1 || month > 12 {
		return 0, 0, NewValidationError("invalid period id %q: month must be 01-12", periodId)
	}
	return year, month, nil
}

func FormatPeriodId(year int, month int) string {
	return fmt.Sprintf("%04d%02d", year, month)
}

func CurrentPeriodId(now time.Time) string {
	return FormatPeriodId(now.Year(), int(now.Month()))
}

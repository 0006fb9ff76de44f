package service

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// DefaultDailyFine is charged per whole day a loan is returned late, in euros.
var DefaultDailyFine = decimal.New(50, -2)

// Fine charges daily for every whole day between due and returned.
// Early and on-time returns cost nothing.
func Fine(due, returned time.Time, daily decimal.Decimal) decimal.Decimal {
	overdue := returned.Sub(due)
	if overdue <= 0 {
		return decimal.Zero
	}
	days := int64(overdue / day)
	return daily.Mul(decimal.NewFromInt(days)).Round(2)
}

// Package latefee computes penalties for rentals returned after their window closes.
package latefee

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/rentflow/internal/domain"
)

const (
	day        = 24 * time.Hour
	centPlaces = 2
)

// PenaltyRatio is the share of the daily rate charged per late day.
var PenaltyRatio = decimal.NewFromFloat(0.5)

// LateDays counts started days between the expected and actual return.
func LateDays(expectedReturn, actualReturn time.Time) int64 {
	if !actualReturn.After(expectedReturn) {
		return 0
	}
	late := actualReturn.Sub(expectedReturn)
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

func ComputeLateFee(expectedReturn, actualReturn time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	days := LateDays(expectedReturn, actualReturn)
	if days == 0 {
		return decimal.Zero
	}
	return dailyRate.Mul(PenaltyRatio).Mul(decimal.NewFromInt(days))
}

// ItemLateFee bills every unit on the line against the line's own rental end,
// rounded to cents so it matches what the store persists.
func ItemLateFee(item domain.OrderItem, actualReturn time.Time) decimal.Decimal {
	rate := item.RentalUnit.DailyRate(item.UnitPrice)
	fee := ComputeLateFee(item.RentalEnd, actualReturn, rate)
	return fee.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(centPlaces)
}

// OrderLateFee returns the fee of each item, in order, and their sum.
func OrderLateFee(items []domain.OrderItem, actualReturn time.Time) ([]decimal.Decimal, decimal.Decimal) {
	fees := make([]decimal.Decimal, len(items))
	total := decimal.Zero
	for i, item := range items {
		fees[i] = ItemLateFee(item, actualReturn)
		total = total.Add(fees[i])
	}
	return fees, total
}

package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RentalUnit string

const (
	RentalUnitHour  RentalUnit = "HOUR"
	RentalUnitDay   RentalUnit = "DAY"
	RentalUnitWeek  RentalUnit = "WEEK"
	RentalUnitMonth RentalUnit = "MONTH"
)

const day = 24 * time.Hour

var (
	hoursPerDay  = decimal.NewFromInt(24)
	daysPerWeek  = decimal.NewFromInt(7)
	daysPerMonth = decimal.NewFromInt(30)
)

func ParseRentalUnit(s string) (RentalUnit, error) {
	switch u := RentalUnit(s); u {
	case RentalUnitHour, RentalUnitDay, RentalUnitWeek, RentalUnitMonth:
		return u, nil
	default:
		return "", fmt.Errorf("%w: unknown rental unit %q", ErrValidation, s)
	}
}

// Duration is the length of one billable unit. A month is billed as 30 days.
func (u RentalUnit) Duration() time.Duration {
	switch u {
	case RentalUnitHour:
		return time.Hour
	case RentalUnitWeek:
		return 7 * day
	case RentalUnitMonth:
		return 30 * day
	default:
		return day
	}
}

// DailyRate converts a per-unit price into a per-day price.
func (u RentalUnit) DailyRate(price decimal.Decimal) decimal.Decimal {
	switch u {
	case RentalUnitHour:
		return price.Mul(hoursPerDay)
	case RentalUnitWeek:
		return price.Div(daysPerWeek)
	case RentalUnitMonth:
		return price.Div(daysPerMonth)
	default:
		return price
	}
}

// Units returns how many billable units the window spans, rounded up, never less than one.
func (u RentalUnit) Units(w Window) int64 {
	d := w.Duration()
	unit := u.Duration()
	n := int64(d / unit)
	if d%unit != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

type Product struct {
	ID             string          `json:"id"`
	VendorID       string          `json:"vendor_id"`
	Name           string          `json:"name"`
	QuantityOnHand int             `json:"quantity_on_hand"`
	RentalPrice    decimal.Decimal `json:"rental_price"`
	RentalUnit     RentalUnit      `json:"rental_unit"`
}

// StockLevel is a point-in-time view of a product's stock over a window.
type StockLevel struct {
	ProductID string `json:"product_id"`
	OnHand    int    `json:"on_hand"`
	Committed int    `json:"committed"`
	Available int    `json:"available"`
}

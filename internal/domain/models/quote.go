package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one daily quote of a single entity (bank).
type PriceObservation struct {
	EntityID  string
	Date      time.Time // calendar day, UTC midnight
	SellPrice decimal.Decimal
	Spread    decimal.Decimal // sell - buy
}

// Direction is the sign of the day-over-day sell price change.
type Direction int8

const (
	Flat Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "flat"
	}
}

// DirectionOf compares two consecutive sell prices.
func DirectionOf(prev, cur decimal.Decimal) Direction {
	switch cur.Cmp(prev) {
	case 1:
		return Up
	case -1:
		return Down
	default:
		return Flat
	}
}

// RawQuote is the ingest payload published by the crawler.
type RawQuote struct {
	Bank string          `json:"bank" validate:"required"`
	Date string          `json:"date" validate:"required"` // 2006-01-02
	Sell decimal.Decimal `json:"sell"`
	Buy  decimal.Decimal `json:"buy"`
}

// DateLayout is the day-stamp format used for keys and API parameters.
const DateLayout = "2006-01-02"

// Day truncates t to the UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

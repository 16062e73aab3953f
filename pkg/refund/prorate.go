package refund

import (
	"math"
	"time"
)

const (
	// FullRefundDays is the window in which a cancellation is refunded in full.
	FullRefundDays = 30
	daysPerYear    = 365
	day            = 24 * time.Hour
)

// DaysUsed counts started days between start and now, rounding up.
// A start in the future counts as zero.
func DaysUsed(start, now time.Time) int64 {
	elapsed := now.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(elapsed) / float64(day)))
}

// Prorate returns the unused share of a yearly charge after daysUsed days.
// Within FullRefundDays the whole amount comes back.
func Prorate(total, daysUsed int64) int64 {
	if total <= 0 {
		return 0
	}
	if daysUsed <= FullRefundDays {
		return total
	}
	used := int64(math.Round(float64(total) / daysPerYear * float64(daysUsed)))
	return max(total-used, 0)
}

// Recurring returns the refund for a monthly charge: all of it within
// FullRefundDays, nothing afterwards.
func Recurring(charge, daysUsed int64) int64 {
	if charge <= 0 || daysUsed > FullRefundDays {
		return 0
	}
	return charge
}

// Package pricing resolves the unit price of a catalog item for a given
// patron tier and point in time.
package pricing

import (
	"time"

	"taproom/internal/models"
)

// Tier represents a patron price tier
type Tier string

const (
	TierRegular Tier = "regular"
	TierVIP     Tier = "vip"
)

// Window is a daily time window in the venue's local time, e.g. happy hour
type Window struct {
	Start string // "17:00"
	End   string // "19:00"
}

// Contains reports whether at falls inside the window. An unset or malformed
// window never matches.
func (w Window) Contains(at time.Time) bool {
	if w.Start == "" || w.End == "" {
		return false
	}
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false
	}
	mins := at.Hour()*60 + at.Minute()
	startMins := start.Hour()*60 + start.Minute()
	endMins := end.Hour()*60 + end.Minute()
	if startMins <= endMins {
		return mins >= startMins && mins < endMins
	}
	// window spans midnight
	return mins >= startMins || mins < endMins
}

// Resolver applies tier and time-window rules to an item's price tiers
type Resolver struct {
	HappyHour Window
}

// Resolve returns the unit price of item for tier at the given time.
// VIP pricing applies when the item defines a VIP price; a configured
// happy-hour window substitutes the happy-hour price when that is lower
// than the tier price.
func (r Resolver) Resolve(item *models.Item, tier Tier, at time.Time) float64 {
	price := item.Price
	if tier == TierVIP && item.VIPPrice > 0 {
		price = item.VIPPrice
	}
	if item.HappyHourPrice > 0 && r.HappyHour.Contains(at) && item.HappyHourPrice < price {
		price = item.HappyHourPrice
	}
	return price
}

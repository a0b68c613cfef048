package domain

import (
	"fmt"
	"math"
)

// FormatDistance renders meters as "850 м" or "1.2 км".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d м", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f км", meters/1000)
}

// FormatDuration renders seconds as "1 ч 5 мин" or "12 мин".
func FormatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%d ч %d мин", hours, minutes)
	}
	return fmt.Sprintf("%d мин", minutes)
}

// RouteSummary is the one-line "distance, duration" label of a route.
func RouteSummary(meters, seconds float64) string {
	return FormatDistance(meters) + ", " + FormatDuration(seconds)
}

var compassPoints = [8]string{
	"север", "северо-восток", "восток", "юго-восток",
	"юг", "юго-запад", "запад", "северо-запад",
}

// CompassDirection names the 45° sector a bearing in degrees falls into.
func CompassDirection(bearing float64) string {
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	return compassPoints[int(math.Round(b/45))%8]
}

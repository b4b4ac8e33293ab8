package graph

import (
	"fmt"
	"math"
)

var (
	byteUnits = []string{"B", "KB", "MB", "GB", "TB"}
	rateUnits = []string{"bps", "kbps", "Mbps", "Gbps"}
)

// formatUnits divides n by 1024 until it is below 8192 and prints it with
// the matching suffix, or overflow once the units run out.
func formatUnits(n float64, units []string, overflow string) string {
	for _, unit := range units {
		if n < 8*1024 {
			return fmt.Sprintf("%d %s", int64(math.Round(n)), unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%d %s", int64(math.Round(n)), overflow)
}

// FormatBytes renders a byte count, e.g. 9000 -> "9 KB".
func FormatBytes(n float64) string {
	return formatUnits(n, byteUnits, "PB")
}

// FormatRate renders a bytes-per-second value as a bit rate.
func FormatRate(bytesPerSecond float64) string {
	return formatUnits(bytesPerSecond*8, rateUnits, "Tbps")
}

// RoundBytes picks a nearby round number for a legend entry: a power of
// 1024 times 1, 10, 50, 100 or 500, or the next power up.
func RoundBytes(n float64) float64 {
	if n <= 0 {
		return 0
	}
	units := math.Pow(1024, math.Floor(math.Log(n)/(10*math.Ln2)))
	frac := n / units
	switch {
	case frac > 800:
		return units * 1024
	case frac > 250:
		return units * 500
	case frac > 60:
		return units * 100
	case frac > 20:
		return units * 50
	case frac > 6:
		return units * 10
	default:
		return units
	}
}

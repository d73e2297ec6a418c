package util

import (
	"fmt"
	"math/bits"
	"time"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatSize renders a byte count with a binary unit and up to three
// decimals, dropping trailing zeros: 1536 is "1.5 KB", 1024 is "1 KB".
func FormatSize(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	exp := 0
	div := uint64(1)
	for size/div >= unit && exp < len(sizeUnits)-1 {
		div *= unit
		exp++
	}
	value := size / div
	remainder := size % div
	if remainder == 0 {
		return fmt.Sprintf("%d %s", value, sizeUnits[exp])
	}

	// Three decimal places; the 128-bit product cannot overflow.
	hi, lo := bits.Mul64(remainder, 1000)
	decimal, _ := bits.Div64(hi, lo, div)
	switch {
	case decimal%10 != 0:
		return fmt.Sprintf("%d.%03d %s", value, decimal, sizeUnits[exp])
	case decimal%100 != 0:
		return fmt.Sprintf("%d.%02d %s", value, decimal/10, sizeUnits[exp])
	default:
		return fmt.Sprintf("%d.%d %s", value, decimal/100, sizeUnits[exp])
	}
}

// FormatRate renders bytes moved over elapsed as a per-second size.
func FormatRate(bytes uint64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "-"
	}
	perSecond := float64(bytes) / elapsed.Seconds()
	return FormatSize(uint64(perSecond)) + "/s"
}

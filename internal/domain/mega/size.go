package mega

import "fmt"

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatBytes форматирует размер: наибольшая единица, в которой значение >= 1,
// два знака после точки. 0 → "0 Bytes", 1536 → "1.50 KB".
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}

	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}

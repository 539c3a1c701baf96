package utils

import "fmt"

// ConvertBytesToHumanReadable converts a byte count into a human-readable
// string (e.g., KB, MB, GB).
func ConvertBytesToHumanReadable(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes)
	exp := 0
	for value >= unit && exp < 5 {
		value /= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", value, "KMGTPE"[exp-1])
}

// ConvertSpeedToHumanReadable formats a bytes/sec rate.
func ConvertSpeedToHumanReadable(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return ConvertBytesToHumanReadable(int64(bytesPerSec)) + "/s"
}

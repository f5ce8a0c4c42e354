package schedule

import "fmt"

// FormatClock renders seconds from service-day midnight as HH:MM:SS. Hours run
// past 23 for trips that leave after midnight.
func FormatClock(seconds int) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, seconds/3600, (seconds%3600)/60, seconds%60)
}

package assistant

import "regexp"

// Whole-word temporal/freshness markers. A keyword gate, not a classifier;
// false positives just cost one search call.
var realTimePattern = regexp.MustCompile(`(?i)\b(current|latest|recent|today|now|2024|2025|news|weather|price|stock|update)\b`)

// NeedsRealTimeInfo reports whether the user message likely asks about
// information newer than the providers' training data.
func NeedsRealTimeInfo(message string) bool {
	return realTimePattern.MatchString(message)
}

package static

import (
	"regexp"
)

// TrackingPrefix is a tracking identifier prefix and the service it belongs to.
type TrackingPrefix struct {
	Prefix  string
	Service string
}

// TrackingPrefixes lists the identifier prefixes searched in options and
// theme files.
var TrackingPrefixes = []TrackingPrefix{
	{Prefix: "UA-", Service: "Google Universal Analytics"},
	{Prefix: "G-", Service: "Google Analytics 4"},
	{Prefix: "GTM-", Service: "Google Tag Manager"},
	{Prefix: "AW-", Service: "Google Ads"},
	{Prefix: "DC-", Service: "DoubleClick / Floodlight"},
}

// trackingIDPatterns holds one compiled pattern per prefix, in the order of
// TrackingPrefixes. The word boundary keeps "tag-1234" from reading as a
// "G-" identifier. Identifiers are upper case, so "ua-parser" is not one.
var trackingIDPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(TrackingPrefixes))
	for i, p := range TrackingPrefixes {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p.Prefix) + `[A-Z0-9]{4,15}`)
	}
	return out
}()

// Redact returns the stored form of an identifier with the given prefix.
func Redact(prefix string) string {
	return prefix + "***"
}

// findTrackingPrefixes returns the prefixes with an identifier in s,
// in TrackingPrefixes order.
func findTrackingPrefixes(s string) []TrackingPrefix {
	var out []TrackingPrefix
	for i, re := range trackingIDPatterns {
		if re.MatchString(s) {
			out = append(out, TrackingPrefixes[i])
		}
	}
	return out
}

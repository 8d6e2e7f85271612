package transaction

import (
	"strings"
	"time"
)

// Layouts accepted for upstream local timestamps, tried in order.
// Layouts with an explicit offset keep it; the rest are read in the
// store's zone.
var localLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"01/02/2006 15:04:05",
}

// ToUTC interprets a local POS timestamp in loc and returns it in UTC at
// second resolution. An empty or unparsable value yields now.
func ToUTC(local string, loc *time.Location, now func() time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local = strings.TrimSpace(local)
	if local != "" {
		for _, layout := range localLayouts {
			if ts, err := time.ParseInLocation(layout, local, loc); err == nil {
				return ts.UTC().Truncate(time.Second)
			}
		}
	}
	return now().UTC().Truncate(time.Second)
}

// LocalString formats t in loc the way upstream timestamps look
func LocalString(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(UTCLayout)
}

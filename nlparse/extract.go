package nlparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSubject = "No Subject"
	defaultTitle   = "Untitled"
	defaultChannel = "#general"
)

// markers recognised by the extractors. A marker's value ends at the end of
// the line or at the next marker, whichever comes first.
var markers = []string{"subject:", "body:", "content:", "title:", "channel:"}

var (
	channelMarkerRe = regexp.MustCompile(`(?i)channel:\s*#?([\w-]+)`)
	channelHashRe   = regexp.MustCompile(`#([\w-]+)`)
	clockTimeRe     = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}\s*(?:am|pm)?)`)
	atTimeRe        = regexp.MustCompile(`(?i)\bat\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)\b`)
	durationRe      = regexp.MustCompile(`(?i)\b(\d+)\s*(minutes?|mins?|hours?|hrs?|days?)\b`)
)

// afterMarker returns the text following the first occurrence of any of the
// given markers, trimmed and cut at the next known marker.
func afterMarker(text string, want ...string) (string, bool) {
	lower := asciiLower(text)
	at, size := -1, 0
	for _, m := range want {
		if i := strings.Index(lower, m); i >= 0 && (at < 0 || i < at) {
			at, size = i, len(m)
		}
	}
	if at < 0 {
		return "", false
	}

	rest := text[at+size:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	restLower := asciiLower(rest)
	for _, m := range markers {
		if i := strings.Index(restLower, m); i >= 0 {
			rest = rest[:i]
			restLower = restLower[:i]
		}
	}

	val := strings.TrimSpace(rest)
	val = strings.TrimRight(val, ",; ")
	if val == "" {
		return "", false
	}
	return val, true
}

// asciiLower folds only ASCII letters so byte offsets stay aligned with the
// original text.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func extractSubject(text string) string {
	if s, ok := afterMarker(text, "subject:"); ok {
		return s
	}
	return defaultSubject
}

// extractBody never fails: without a marker the whole instruction is the body.
func extractBody(text string) string {
	if s, ok := afterMarker(text, "body:", "content:"); ok {
		return s
	}
	return text
}

func extractTitle(text string) string {
	if s, ok := afterMarker(text, "title:"); ok {
		return s
	}
	return defaultTitle
}

// extractChannel returns the channel name without its leading '#', or "".
func extractChannel(text string) string {
	if m := channelMarkerRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := channelHashRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// extractTime returns a clock time mentioned in text, or now formatted as
// RFC 3339 when none is present.
func extractTime(text string, now Clock) string {
	if m := clockTimeRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := atTimeRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return now().UTC().Format(time.RFC3339)
}

// extractDuration returns a duration mentioned in text, in minutes.
func extractDuration(text string) (int64, bool) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	var per int64 = 1
	switch unit := strings.ToLower(m[2]); {
	case strings.HasPrefix(unit, "h"):
		per = 60
	case strings.HasPrefix(unit, "d"):
		per = 60 * 24
	}
	if n > math.MaxInt64/per {
		return 0, false
	}
	return n * per, true
}

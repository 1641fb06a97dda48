package videos

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// processingSecondsPerSecond is the backend's average processing cost per
// second of selected video.
const processingSecondsPerSecond = 0.244

// FormatTime renders a duration in seconds as "h:m:s" with optional unit
// suffixes. Zero renders as "0".
func FormatTime(seconds float64, hms, leadingZero bool) string {
	if seconds == 0 || math.IsNaN(seconds) {
		return "0"
	}

	hours := int(math.Floor(seconds / 60 / 60))
	minutes := int(math.Floor(math.Mod(seconds, 3600) / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))

	var b strings.Builder
	if hours >= 1 {
		b.WriteString(strconv.Itoa(hours))
		if hms {
			b.WriteByte('h')
		}
		b.WriteByte(':')
	}
	if minutes >= 1 {
		b.WriteString(strconv.Itoa(minutes))
		if hms {
			b.WriteByte('m')
		}
		b.WriteByte(':')
	}
	if secs < 10 && leadingZero {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(secs))
	if hms {
		b.WriteByte('s')
	}
	return b.String()
}

// EstimatedMinutes estimates how many minutes remain for a video of length
// seconds whose processing started at startMillis. The result is never below 1.
func EstimatedMinutes(startMillis int64, length float64, now time.Time) int {
	elapsed := float64(now.UnixMilli()-startMillis) / 60 / 60
	result := int(math.Floor((length*processingSecondsPerSecond - elapsed) / 60))
	if result < 1 {
		return 1
	}
	return result
}

const maxFilenameBytes = 255

// SafeFilename replaces characters that are not valid in file names on common
// filesystems with "_".
func SafeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	for len(out) > maxFilenameBytes {
		_, size := utf8.DecodeLastRuneInString(out)
		out = out[:len(out)-size]
	}
	switch out {
	case "", ".", "..":
		return "_"
	}
	return out
}

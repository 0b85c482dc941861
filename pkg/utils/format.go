package utils

import (
	"math"
	"strconv"
	"time"
)

// uploadDateLayout matches the display format file records were historically
// written with. Records carry the formatted string, not a timestamp, so the
// same layout is used to parse it back when computing recency.
const uploadDateLayout = "1/2/2006, 3:04:05 PM"

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count as the human-readable string stored on
// file records ("2 MB", "1.5 KB"). Trailing zeros after the second decimal
// are trimmed.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	exp := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if exp >= len(sizeUnits) {
		exp = len(sizeUnits) - 1
	}

	value := float64(bytes) / math.Pow(1024, float64(exp))
	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[exp]
}

func FormatUploadDate(t time.Time) string {
	return t.Format(uploadDateLayout)
}

func ParseUploadDate(value string) (time.Time, error) {
	return time.ParseInLocation(uploadDateLayout, value, time.Local)
}

// UploadedWithin reports whether a formatted upload date falls inside the
// trailing window ending at now. Unparseable dates count as outside it.
func UploadedWithin(uploadDate string, window time.Duration, now time.Time) bool {
	t, err := ParseUploadDate(uploadDate)
	if err != nil {
		return false
	}
	return t.After(now.Add(-window))
}

package http

import (
	"time"

	xutil "NiftyScan/pkg/util"
)

// Re-exports so handlers parse optional query parameters without a second
// import.

func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

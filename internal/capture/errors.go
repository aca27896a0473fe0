package capture

import "strings"

// ErrorCategory classifies decoder failures for logs and stats.
type ErrorCategory int

const (
	// ErrCategoryInput covers missing, unreadable or truncated input files.
	ErrCategoryInput ErrorCategory = iota
	// ErrCategoryCodec covers demux, decode and caps negotiation failures.
	ErrCategoryCodec
	// ErrCategoryUnknown is everything else.
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryInput:
		return "input"
	case ErrCategoryCodec:
		return "codec"
	default:
		return "unknown"
	}
}

var (
	inputKeywords = []string{
		"no such file",
		"not found",
		"could not open",
		"permission denied",
		"resource",
		"read error",
		"truncated",
	}
	codecKeywords = []string{
		"codec",
		"decode",
		"demux",
		"format",
		"negotiat",
		"caps",
		"missing plugin",
		"no decoder",
		"type not found",
	}
)

// ClassifyError categorizes a GStreamer error from its message and debug
// string. Codec keywords win over input keywords: "stream format not found"
// is a codec problem.
func ClassifyError(msg, debug string) ErrorCategory {
	combined := strings.ToLower(msg + " " + debug)
	if containsAny(combined, codecKeywords) {
		return ErrCategoryCodec
	}
	if containsAny(combined, inputKeywords) {
		return ErrCategoryInput
	}
	return ErrCategoryUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

package axlf

import "strings"

// FormatType identifies how a payload is represented outside the container.
type FormatType int

const (
	FTUnknown FormatType = iota
	FTUndefined
	FTRaw
	FTJSON
	FTHTML
	FTTxt
)

func (ft FormatType) String() string {
	switch ft {
	case FTRaw:
		return "RAW"
	case FTJSON:
		return "JSON"
	case FTHTML:
		return "HTML"
	case FTTxt:
		return "TXT"
	case FTUndefined:
		return "UNDEFINED"
	default:
		return "UNKNOWN"
	}
}

// ParseFormatType is case-insensitive. An empty string is FTUndefined
// (format token absent); an unrecognized string is FTUnknown.
func ParseFormatType(s string) FormatType {
	switch strings.ToUpper(s) {
	case "":
		return FTUndefined
	case "RAW":
		return FTRaw
	case "JSON":
		return FTJSON
	case "HTML":
		return FTHTML
	case "TXT":
		return FTTxt
	default:
		return FTUnknown
	}
}

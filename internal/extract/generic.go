package extract

import "unicode/utf8"

// ParseGeneric wraps raw unchanged
func ParseGeneric(raw string) GenericText {
	return GenericText{
		Content: raw,
		Length:  utf8.RuneCountInString(raw),
	}
}

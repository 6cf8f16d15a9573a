package interpreter

import (
	"strconv"
	"strings"
)

// ParseValue interprets a record as a base-10 unsigned 32-bit integer.
// Only digits surrounded by optional whitespace are accepted, anything else
// (diagnostic output, signs, floats, out of range numbers) is reported as
// not a value. That is never an error: devices interleave such lines with data.
func ParseValue(text string) (uint32, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}

	value, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(value), true
}

package forms

import (
	"fmt"
	"strconv"
)

// stringify renders non-string result values the way they appeared in the
// model's JSON output: integers without a trailing ".0", everything else via
// the default format.
func stringify(v any) string {
	if f, ok := v.(float64); ok {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/voxfill/voxfill/pkg/forms"
)

// ErrNoMapping is returned when a model response carries no usable field
// mapping: no JSON at all, or a JSON object with zero fields.
var ErrNoMapping = errors.New("extract: response contains no field mapping")

var fenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// Parse recovers a field mapping from a raw model response. Models wrap their
// JSON in markdown fences or prose more often than not, so parsing is
// defensive: fenced blocks are preferred, then the widest brace-delimited
// substring. A top-level "structured" object is unwrapped; a flat object is
// accepted as-is.
func Parse(raw string) (forms.Result, error) {
	jsonStr := strings.TrimSpace(raw)
	if jsonStr == "" {
		return nil, ErrNoMapping
	}

	if m := fenceRe.FindStringSubmatch(jsonStr); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	} else if !strings.HasPrefix(jsonStr, "{") {
		start := strings.Index(jsonStr, "{")
		end := strings.LastIndex(jsonStr, "}")
		if start < 0 || end <= start {
			return nil, ErrNoMapping
		}
		jsonStr = jsonStr[start : end+1]
	}

	var outer map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &outer); err != nil {
		return nil, fmt.Errorf("extract: parse response: %w", err)
	}

	mapping := outer
	if inner, ok := outer["structured"]; ok {
		obj, ok := inner.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("extract: %q key is not an object", "structured")
		}
		mapping = obj
	}

	if len(mapping) == 0 {
		return nil, ErrNoMapping
	}
	return forms.Result(mapping), nil
}

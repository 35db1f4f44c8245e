package horunner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatParams renders a candidate as compact JSON with sorted keys and no
// whitespace, e.g. {"lr":0.01,"x":1.5}. The output is stable, so it doubles
// as a log field and a map key.
func FormatParams(p Params) string {
	if p == nil {
		return "{}"
	}

	b, err := json.Marshal(p)
	if err != nil {
		// Only NaN and Inf values cannot be encoded.
		return fmt.Sprintf("%v", map[string]float64(p))
	}

	return string(b)
}

// ParseParams is the inverse of FormatParams. Surrounding whitespace is
// ignored.
func ParseParams(s string) (Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Params{}, nil
	}

	var p Params
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("parse params %q: %w", s, err)
	}

	if p == nil {
		p = Params{}
	}

	return p, nil
}

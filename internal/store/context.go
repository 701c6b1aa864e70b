package store

import (
	"encoding/json"
	"strings"
)

// Canonical context keys.
const (
	KeyName            = "name"
	KeyConcern         = "concern"
	KeyDoctor          = "doctor"
	KeyPreferredPeriod = "preferred_period"
)

// legacyAliases maps deprecated keys onto their canonical replacement.
var legacyAliases = map[string]string{
	"need":            KeyConcern,
	"time_preference": KeyPreferredPeriod,
}

// Context holds the fields extracted from a patient's replies.
type Context map[string]string

// NormalizeContext folds legacy alias keys into canonical ones. The
// canonical value wins when both are set. The input is not modified.
func NormalizeContext(in map[string]string) Context {
	out := make(Context, len(in))
	for k, v := range in {
		if _, legacy := legacyAliases[k]; legacy {
			continue
		}
		out[k] = v
	}
	for alias, canonical := range legacyAliases {
		v := strings.TrimSpace(in[alias])
		if v == "" {
			continue
		}
		if strings.TrimSpace(out[canonical]) == "" {
			out[canonical] = v
		}
	}
	return out
}

// Get returns the trimmed value for key.
func (c Context) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// Has reports whether key holds a non-blank value.
func (c Context) Has(key string) bool {
	return c.Get(key) != ""
}

// Clone returns an independent copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// decodeContext parses a stored JSON object. Non-string values are
// rendered with their JSON text so nothing stored is silently dropped.
func decodeContext(raw []byte) (Context, error) {
	if len(raw) == 0 {
		return Context{}, nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	flat := make(map[string]string, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case nil:
		case string:
			flat[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			flat[k] = string(b)
		}
	}
	return NormalizeContext(flat), nil
}

func encodeContext(c Context) ([]byte, error) {
	if c == nil {
		c = Context{}
	}
	return json.Marshal(NormalizeContext(c))
}

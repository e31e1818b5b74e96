package observability

import (
	"encoding/json"
	"regexp"
)

// redactedKeys are JSON object keys whose values are replaced with "[redacted]"
// before logging, mirroring manifold/internal/observability/redact.go's
// treatment of API keys and tokens.
var redactedKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"token":         {},
	"secret":        {},
	"password":      {},
}

var bearerTokenRe = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._-]+`)

// RedactJSON returns a copy of a JSON document with known-sensitive object
// keys masked. Non-JSON or unparsable input is returned with only its
// "Bearer <token>" values masked, so logging never fails because of a
// malformed payload.
func RedactJSON(raw []byte) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return bearerTokenRe.ReplaceAll(raw, []byte("${1}[redacted]"))
	}
	redactValue(v)
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

func redactValue(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if _, sensitive := redactedKeys[normalizeKey(k)]; sensitive {
				t[k] = "[redacted]"
				continue
			}
			redactValue(val)
		}
	case []any:
		for _, elem := range t {
			redactValue(elem)
		}
	}
}

func normalizeKey(k string) string {
	out := make([]byte, 0, len(k))
	for i := 0; i < len(k); i++ {
		c := k[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != '_' && c != '-' {
			out = append(out, c)
		} else if c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}

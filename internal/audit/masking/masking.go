package masking

import "strings"

// Key fragments that mark audit metadata as sensitive. Payment metadata
// carries provider secrets, card tokens and offline bank/check numbers.
var sensitiveKeys = []string{
	"secret",
	"token",
	"password",
	"signature",
	"card_number",
	"account_number",
	"routing_number",
}

const (
	maskToken  = "****"
	keepSuffix = 4
)

// MaskSecret redacts a value, keeping any provider prefix ("pi_", "tok_")
// and the last four characters.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix, rest := "", value
	if i := strings.LastIndex(value, "_"); i >= 0 && i < len(value)-1 {
		prefix, rest = value[:i+1], value[i+1:]
	}
	if len(rest) <= keepSuffix {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-keepSuffix:]
}

// MaskSensitive copies input, masking values under sensitive keys. Nested
// maps are walked so provider payload excerpts are covered too.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch {
		case isSensitive(key):
			out[key] = redact(value)
		default:
			if nested, ok := value.(map[string]any); ok {
				out[key] = MaskSensitive(nested)
				continue
			}
			out[key] = value
		}
	}
	return out
}

func redact(value any) any {
	switch v := value.(type) {
	case string:
		return MaskSecret(v)
	case []any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = redact(v[i])
		}
		return items
	case map[string]any:
		items := make(map[string]any, len(v))
		for k, inner := range v {
			items[k] = redact(inner)
		}
		return items
	case nil:
		return nil
	default:
		return maskToken
	}
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveKeys {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

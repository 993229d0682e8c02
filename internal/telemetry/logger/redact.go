package logger

import (
	"log/slog"
	"strings"
)

const redactedValue = "***REDACTED***"

// maskedPrefixes mark values that are secrets no matter which key carries
// them. They are masked rather than dropped so lines can still be correlated.
var maskedPrefixes = [...]string{
	"amtk_",      // session token
	"amrc_",      // recovery code hash
	"sealed:v1:", // sealed TOTP seed
}

// secretKeyFragments mark keys whose string values are dropped entirely.
// "code" is not listed: error codes are logged under it.
var secretKeyFragments = [...]string{
	"password", "secret", "token", "digest",
	"credential", "totp", "recovery", "bearer",
}

// redactSensitive is installed as the handler's ReplaceAttr hook.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		members := a.Value.Group()
		out := make([]slog.Attr, 0, len(members))
		for _, m := range members {
			out = append(out, redactSensitive(m))
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}

	case slog.KindString:
		s := a.Value.String()
		if prefix, ok := matchPrefix(s); ok {
			return slog.String(a.Key, mask(s, prefix))
		}
		if s != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}

func matchPrefix(s string) (string, bool) {
	for _, p := range maskedPrefixes {
		if strings.HasPrefix(s, p) {
			return p, true
		}
	}
	return "", false
}

// mask keeps the prefix plus the first and last three body characters.
// Bodies too short to hide anything collapse to "***".
func mask(s, prefix string) string {
	body := strings.TrimPrefix(s, prefix)
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks value when it starts with a known secret prefix and
// returns it unchanged otherwise.
func RedactString(value string) string {
	if prefix, ok := matchPrefix(value); ok {
		return mask(value, prefix)
	}
	return value
}

// IsSensitiveKey reports whether a log key names secret material.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range secretKeyFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether value carries a known secret prefix.
func IsSensitiveValue(value string) bool {
	_, ok := matchPrefix(value)
	return ok
}

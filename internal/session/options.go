package session

import "strings"

// Option keys a joining client passes in its options string.
const (
	OptionPlayerSessionID = "PlayerSessionId"
	OptionPlayerID        = "PlayerId"
)

// ParseOption returns the value of key in an options string of the form
// "?Key=Value?Other=Value". Keys match case-insensitively; a missing key or a
// key without a value yields "".
func ParseOption(options, key string) string {
	for _, pair := range strings.Split(options, "?") {
		name, value, _ := strings.Cut(pair, "=")
		if strings.EqualFold(strings.TrimSpace(name), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

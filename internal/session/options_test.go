package session

import "testing"

func TestParseOption(t *testing.T) {
	const options = "?PlayerSessionId=psess-1?playerid=p1?Name=Bob?Spectator"

	tests := map[string]string{
		"PlayerSessionId": "psess-1",
		"PlayerId":        "p1",
		"NAME":            "Bob",
		"Spectator":       "",
		"Missing":         "",
	}
	for key, want := range tests {
		if got := ParseOption(options, key); got != want {
			t.Errorf("ParseOption(%q) want = %q, got = %q", key, want, got)
		}
	}

	if got := ParseOption("", OptionPlayerID); got != "" {
		t.Errorf("ParseOption on empty options want = \"\", got = %q", got)
	}
}

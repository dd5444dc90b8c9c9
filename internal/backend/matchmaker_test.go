package backend

import (
	"testing"

	"github.com/go-test/deep"
)

const testMatchmakerData = `{
	"matchId": "b8a7f6e5",
	"matchmakingConfigurationArn": "arn:aws:gamelift:us-east-1:123456789012:matchmakingconfiguration/showdown",
	"autoBackfillTicketId": "backfill-1",
	"autoBackfillMode": "AUTOMATIC",
	"teams": [
		{"name": "cowboys", "players": [{"playerId": "p1", "attributes": {"skill": {"attributeType": "DOUBLE", "valueAttribute": 10}}}, {"playerId": "p3"}]},
		{"name": "aliens", "players": [{"playerId": "p2"}, {"playerId": ""}]}
	]
}`

func TestParseMatchmakerData(t *testing.T) {
	data, err := ParseMatchmakerData(testMatchmakerData)
	if err != nil {
		t.Fatalf("ParseMatchmakerData() returned error: %v", err)
	}

	if data.AutoBackfillTicketID != "backfill-1" {
		t.Errorf("AutoBackfillTicketID want = backfill-1, got = %s", data.AutoBackfillTicketID)
	}
	want := map[string]string{"p1": "cowboys", "p3": "cowboys", "p2": "aliens"}
	if diff := deep.Equal(data.PlayerTeams(), want); diff != nil {
		t.Error(diff)
	}
}

func TestParseMatchmakerData_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":       "",
		"not_json":    "teams=cowboys",
		"wrong_shape": `{"teams": {"name": "cowboys"}}`,
		"truncated":   `{"teams": [{"name": "cowboys", "players": [`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseMatchmakerData(raw); err == nil {
				t.Errorf("ParseMatchmakerData(%q) expected an error", raw)
			}
		})
	}
}

func TestUpdateReason_IsBackfillEnded(t *testing.T) {
	tests := map[UpdateReason]bool{
		MatchmakingDataUpdated: false,
		BackfillFailed:         true,
		BackfillTimedOut:       true,
		BackfillCancelled:      true,
		UnknownUpdateReason:    false,
	}
	for reason, want := range tests {
		if got := reason.IsBackfillEnded(); got != want {
			t.Errorf("%s.IsBackfillEnded() want = %v, got = %v", reason, want, got)
		}
	}
}

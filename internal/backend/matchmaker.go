package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MatchmakerData is the document the matchmaker attaches to a game session
// describing who was placed on which team.
type MatchmakerData struct {
	MatchID                     string `json:"matchId,omitempty"`
	MatchmakingConfigurationArn string `json:"matchmakingConfigurationArn,omitempty"`
	AutoBackfillTicketID        string `json:"autoBackfillTicketId"`
	AutoBackfillMode            string `json:"autoBackfillMode,omitempty"`
	Teams                       []Team `json:"teams"`
}

type Team struct {
	Name    string   `json:"name"`
	Players []Player `json:"players"`
}

type Player struct {
	PlayerID   string                     `json:"playerId"`
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
}

var errEmptyMatchmakerData = errors.New("matchmaker data is empty")

// ParseMatchmakerData decodes the matchmaker document carried by a game session.
func ParseMatchmakerData(raw string) (*MatchmakerData, error) {
	if raw == "" {
		return nil, errEmptyMatchmakerData
	}

	var data MatchmakerData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decoding matchmaker data: %w", err)
	}
	return &data, nil
}

// PlayerTeams maps every player id in the document to the name of its team.
// Players without an id are skipped.
func (m *MatchmakerData) PlayerTeams() map[string]string {
	teams := make(map[string]string)
	for _, team := range m.Teams {
		for _, player := range team.Players {
			if player.PlayerID == "" {
				continue
			}
			teams[player.PlayerID] = team.Name
		}
	}
	return teams
}

package data

import (
	"time"

	"gorm.io/gorm"
)

// MatchResult is the ledger entry written each time a match outcome is
// reported to the results API.
type MatchResult struct {
	ID            uint64 `gorm:"primaryKey"`
	GameSessionID string `gorm:"index"`
	WinningTeam   string `gorm:"not null"`
	// Delivered is true if the results API answered with a 2xx status.
	Delivered  bool
	StatusCode int
	// Transport or API error, if any.
	Error      string
	ReportedAt time.Time
}

// CreateMatchResult persists the MatchResult record to the database.
func CreateMatchResult(db *gorm.DB, result *MatchResult) error {
	return db.Create(result).Error
}

// FindMatchResults returns up to limit results, newest first.
func FindMatchResults(db *gorm.DB, limit int) ([]MatchResult, error) {
	var results []MatchResult
	err := db.Order("reported_at desc").Order("id desc").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FindMatchResultsBySession returns every result recorded for a game session.
func FindMatchResultsBySession(db *gorm.DB, gameSessionID string) ([]MatchResult, error) {
	var results []MatchResult
	err := db.Where("game_session_id = ?", gameSessionID).Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

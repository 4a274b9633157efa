// models/pvp_match.go
package models

import "time"

type MatchStatus string

const (
	MatchActive   MatchStatus = "ACTIVE"
	MatchFinished MatchStatus = "FINISHED"
)

// PvpMatch is the single server-held truth for a two-player battle.
// FINISHED is absorbing: WinnerID is written once, together with the status.
type PvpMatch struct {
	ID            string      `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	AttackerID    string      `gorm:"type:uuid;not null;index" json:"attacker_id"`
	DefenderID    string      `gorm:"type:uuid;not null;index" json:"defender_id"`
	AttackerHP    int         `gorm:"column:attacker_hp;not null;check:attacker_hp >= 0" json:"attacker_hp"`
	DefenderHP    int         `gorm:"column:defender_hp;not null;check:defender_hp >= 0" json:"defender_hp"`
	AttackerStats CombatStats `gorm:"type:jsonb;not null" json:"attacker_stats"`
	DefenderStats CombatStats `gorm:"type:jsonb;not null" json:"defender_stats"`
	TurnPlayerID  *string     `gorm:"type:uuid" json:"turn_player_id"`
	TurnNumber    int         `gorm:"not null;default:1" json:"turn_number"`
	Status        MatchStatus `gorm:"type:varchar(16);not null;index;check:status IN ('ACTIVE','FINISHED')" json:"status"`
	WinnerID      *string     `gorm:"type:uuid" json:"winner_id"`
	WagerAmount   int64       `gorm:"not null;default:0;check:wager_amount >= 0" json:"wager_amount"`
	LastUpdate    time.Time   `gorm:"not null;index" json:"last_update"`
	ArchivedAt    *time.Time  `gorm:"index" json:"archived_at,omitempty"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// IsParticipant reports whether userID is the attacker or the defender.
func (m *PvpMatch) IsParticipant(userID string) bool {
	return userID != "" && (userID == m.AttackerID || userID == m.DefenderID)
}

// Opponent returns the other participant's id, or "" for a non-participant.
func (m *PvpMatch) Opponent(userID string) string {
	switch userID {
	case m.AttackerID:
		return m.DefenderID
	case m.DefenderID:
		return m.AttackerID
	}
	return ""
}

// Role returns "attacker", "defender" or "" for userID.
func (m *PvpMatch) Role(userID string) string {
	switch userID {
	case m.AttackerID:
		return "attacker"
	case m.DefenderID:
		return "defender"
	}
	return ""
}

// TurnHolder returns the participant expected to move. An unset turn belongs
// to the attacker.
func (m *PvpMatch) TurnHolder() string {
	if m.TurnPlayerID != nil {
		return *m.TurnPlayerID
	}
	return m.AttackerID
}

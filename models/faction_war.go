// models/faction_war.go
package models

import "time"

// FactionWarScore accumulates mission clears per streamer and faction.
type FactionWarScore struct {
	StreamerID string    `gorm:"primaryKey;type:varchar(64)" json:"streamer_id"`
	Faction    string    `gorm:"primaryKey;type:varchar(8)" json:"faction"`
	Score      int64     `gorm:"not null;default:0" json:"score"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

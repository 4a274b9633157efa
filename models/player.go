// models/player.go
package models

import "time"

// Faction values a player may align with.
const (
	FactionRed    = "RED"
	FactionPurple = "PURPLE"
	FactionNone   = "NONE"
)

// Player is a wallet-anchored account. Level is always derived from XP on the server.
type Player struct {
	ID                string         `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Wallet            string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"wallet"`
	XP                int64          `gorm:"not null;default:0" json:"xp"`
	Level             int            `gorm:"not null;default:1" json:"level"`
	PtsBalance        int64          `gorm:"not null;default:0;check:pts_balance >= 0" json:"pts_balance"`
	Inventory         Inventory      `gorm:"type:jsonb;not null;default:'{}'" json:"inventory"`
	CompletedMissions MissionRecords `gorm:"type:jsonb;not null;default:'[]'" json:"completed_missions"`
	Wins              int64          `gorm:"not null;default:0" json:"wins"`
	Losses            int64          `gorm:"not null;default:0" json:"losses"`
	GLR               int            `gorm:"column:glr;not null;default:1000" json:"glr"`
	Faction           string         `gorm:"type:varchar(8);not null;default:'NONE'" json:"faction"`
	IsFactionMinted   bool           `gorm:"not null;default:false" json:"is_faction_minted"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	// Written explicitly by every accepted sync/mission so it can pace the next one.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (Player) TableName() string { return "users" }

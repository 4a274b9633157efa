// models/mint_attempt.go
package models

import "time"

const (
	MintBuilt     = "BUILT"
	MintCompleted = "COMPLETED"
)

// MintAttempt is keyed by the client idempotency key. Only BUILT may become COMPLETED.
type MintAttempt struct {
	IdempotencyKey string    `gorm:"primaryKey;type:varchar(128)" json:"idempotency_key"`
	UserID         string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Status         string    `gorm:"type:varchar(16);not null;check:status IN ('BUILT','COMPLETED')" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

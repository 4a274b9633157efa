// Package stores persists players, matches, mint attempts and faction scores.
//
// Every state change that can race is a single conditional update. A write
// whose predicate no longer holds reports applied=false instead of an error:
// somebody else already resolved that row.
package stores

import (
	"context"
	"errors"
	"time"

	"resistance-server/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientFunds = errors.New("insufficient pts balance")
	ErrConflict          = errors.New("record owned by another user")
)

type PlayerStore interface {
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	// EnsureWallet returns the player bound to wallet, creating it on first login.
	EnsureWallet(ctx context.Context, wallet string) (*models.Player, error)
	// UpdateProgress applies u only while the stored updated_at still equals expectUpdatedAt.
	UpdateProgress(ctx context.Context, id string, expectUpdatedAt time.Time, u ProgressUpdate) (bool, error)
	// AdjustPtsBalance adds amount (may be negative) and returns the new balance.
	// The balance never goes below zero; such a request fails with ErrInsufficientFunds.
	AdjustPtsBalance(ctx context.Context, id string, amount int64) (int64, error)
	AdjustGLR(ctx context.Context, id string, delta int) error
}

// ProgressUpdate carries absolute values for guarded fields and deltas for
// counters that other writers (payouts) also touch.
type ProgressUpdate struct {
	XP                int64
	Level             int
	Inventory         models.Inventory
	CompletedMissions models.MissionRecords
	Faction           string
	PtsDelta          int64
	WinsDelta         int64
	LossesDelta       int64
	UpdatedAt         time.Time
}

type MatchStore interface {
	GetMatch(ctx context.Context, id string) (*models.PvpMatch, error)
	// CreateMatch debits WagerAmount from both participants and inserts m, atomically.
	CreateMatch(ctx context.Context, m *models.PvpMatch) error
	Transition(ctx context.Context, id string, g MatchGuard, c MatchChange) (bool, error)
	ListArchivable(ctx context.Context, finishedBefore time.Time, limit int) ([]models.PvpMatch, error)
	MarkArchived(ctx context.Context, id string, at time.Time) (bool, error)
}

// MatchGuard is the predicate a Transition must satisfy. Zero values are ignored,
// except Status which is always checked.
type MatchGuard struct {
	Status               models.MatchStatus
	Participant          string
	TurnNumber           *int
	TurnPlayerID         *string
	TurnPlayerUnset      bool
	LastUpdate           *time.Time
	LastUpdateAtOrBefore *time.Time
}

// MatchChange lists the columns a Transition writes. nil fields are left alone.
type MatchChange struct {
	AttackerHP   *int
	DefenderHP   *int
	TurnPlayerID *string
	TurnNumber   *int
	Status       *models.MatchStatus
	WinnerID     *string
	LastUpdate   time.Time
}

type MintStore interface {
	// CreateAttempt records a BUILT attempt. created=false means the key already existed.
	CreateAttempt(ctx context.Context, key, userID string) (*models.MintAttempt, bool, error)
	// CompleteAttempt flips BUILT to COMPLETED; false when no BUILT row exists.
	CompleteAttempt(ctx context.Context, key string) (bool, error)
}

type FactionStore interface {
	Contribute(ctx context.Context, streamerID, faction string, points int64) error
	Standings(ctx context.Context, streamerID string) ([]models.FactionWarScore, error)
}

// Set bundles one implementation of every store.
type Set struct {
	Players  PlayerStore
	Matches  MatchStore
	Mints    MintStore
	Factions FactionStore
}

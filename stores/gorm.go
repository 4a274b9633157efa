// stores/gorm.go
package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resistance-server/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OpenPostgres connects and migrates the schema.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Player{},
		&models.PvpMatch{},
		&models.MintAttempt{},
		&models.FactionWarScore{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.WithField("component", "stores").Info("database migrated")
	return db, nil
}

// NewGormSet wires every store to the same *gorm.DB.
func NewGormSet(db *gorm.DB) Set {
	return Set{
		Players:  &GormPlayerStore{DB: db},
		Matches:  &GormMatchStore{DB: db},
		Mints:    &GormMintStore{DB: db},
		Factions: &GormFactionStore{DB: db},
	}
}

type GormPlayerStore struct {
	DB *gorm.DB
}

func (s *GormPlayerStore) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	var p models.Player
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *GormPlayerStore) EnsureWallet(ctx context.Context, wallet string) (*models.Player, error) {
	p := models.Player{
		Wallet:            wallet,
		Level:             1,
		GLR:               1000,
		Faction:           models.FactionNone,
		Inventory:         models.Inventory{},
		CompletedMissions: models.MissionRecords{},
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wallet"}}, DoNothing: true}).
		Create(&p).Error
	if err != nil {
		return nil, err
	}

	var out models.Player
	if err := s.DB.WithContext(ctx).Where("wallet = ?", wallet).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *GormPlayerStore) UpdateProgress(ctx context.Context, id string, expectUpdatedAt time.Time, u ProgressUpdate) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Player{}).
		Where("id = ? AND updated_at = ?", id, expectUpdatedAt).
		UpdateColumns(map[string]any{
			"xp":                 u.XP,
			"level":              u.Level,
			"inventory":          u.Inventory,
			"completed_missions": u.CompletedMissions,
			"faction":            u.Faction,
			"pts_balance":        gorm.Expr("pts_balance + ?", u.PtsDelta),
			"wins":               gorm.Expr("wins + ?", u.WinsDelta),
			"losses":             gorm.Expr("losses + ?", u.LossesDelta),
			"updated_at":         u.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormPlayerStore) AdjustPtsBalance(ctx context.Context, id string, amount int64) (int64, error) {
	var balance int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Player{}).
			Where("id = ? AND pts_balance + ? >= 0", id, amount).
			UpdateColumn("pts_balance", gorm.Expr("pts_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.Player{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			return ErrInsufficientFunds
		}
		return tx.Model(&models.Player{}).Where("id = ?", id).Pluck("pts_balance", &balance).Error
	})
	return balance, err
}

func (s *GormPlayerStore) AdjustGLR(ctx context.Context, id string, delta int) error {
	res := s.DB.WithContext(ctx).Model(&models.Player{}).
		Where("id = ?", id).
		UpdateColumn("glr", gorm.Expr("GREATEST(glr + ?, 0)", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type GormMatchStore struct {
	DB *gorm.DB
}

func (s *GormMatchStore) GetMatch(ctx context.Context, id string) (*models.PvpMatch, error) {
	var m models.PvpMatch
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormMatchStore) CreateMatch(ctx context.Context, m *models.PvpMatch) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.WagerAmount > 0 {
			for _, uid := range []string{m.AttackerID, m.DefenderID} {
				res := tx.Model(&models.Player{}).
					Where("id = ? AND pts_balance >= ?", uid, m.WagerAmount).
					UpdateColumn("pts_balance", gorm.Expr("pts_balance - ?", m.WagerAmount))
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return fmt.Errorf("stake wager for %s: %w", uid, ErrInsufficientFunds)
				}
			}
		}
		return tx.Create(m).Error
	})
}

func (s *GormMatchStore) Transition(ctx context.Context, id string, g MatchGuard, c MatchChange) (bool, error) {
	q := s.DB.WithContext(ctx).Model(&models.PvpMatch{}).
		Where("id = ? AND status = ?", id, g.Status)
	if g.Participant != "" {
		q = q.Where("(attacker_id = ? OR defender_id = ?)", g.Participant, g.Participant)
	}
	if g.TurnNumber != nil {
		q = q.Where("turn_number = ?", *g.TurnNumber)
	}
	if g.TurnPlayerID != nil {
		q = q.Where("turn_player_id = ?", *g.TurnPlayerID)
	}
	if g.TurnPlayerUnset {
		q = q.Where("turn_player_id IS NULL")
	}
	if g.LastUpdate != nil {
		q = q.Where("last_update = ?", *g.LastUpdate)
	}
	if g.LastUpdateAtOrBefore != nil {
		q = q.Where("last_update <= ?", *g.LastUpdateAtOrBefore)
	}

	set := map[string]any{"last_update": c.LastUpdate}
	if c.AttackerHP != nil {
		set["attacker_hp"] = *c.AttackerHP
	}
	if c.DefenderHP != nil {
		set["defender_hp"] = *c.DefenderHP
	}
	if c.TurnPlayerID != nil {
		set["turn_player_id"] = *c.TurnPlayerID
	}
	if c.TurnNumber != nil {
		set["turn_number"] = *c.TurnNumber
	}
	if c.Status != nil {
		set["status"] = *c.Status
	}
	if c.WinnerID != nil {
		set["winner_id"] = *c.WinnerID
	}

	res := q.UpdateColumns(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormMatchStore) ListArchivable(ctx context.Context, finishedBefore time.Time, limit int) ([]models.PvpMatch, error) {
	var out []models.PvpMatch
	err := s.DB.WithContext(ctx).
		Where("status = ? AND archived_at IS NULL AND last_update < ?", models.MatchFinished, finishedBefore).
		Order("last_update ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *GormMatchStore) MarkArchived(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.PvpMatch{}).
		Where("id = ? AND status = ? AND archived_at IS NULL", id, models.MatchFinished).
		UpdateColumn("archived_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type GormMintStore struct {
	DB *gorm.DB
}

func (s *GormMintStore) CreateAttempt(ctx context.Context, key, userID string) (*models.MintAttempt, bool, error) {
	a := models.MintAttempt{IdempotencyKey: key, UserID: userID, Status: models.MintBuilt}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(&a)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &a, true, nil
	}

	var existing models.MintAttempt
	if err := s.DB.WithContext(ctx).Where("idempotency_key = ?", key).First(&existing).Error; err != nil {
		return nil, false, err
	}
	if existing.UserID != userID {
		return nil, false, ErrConflict
	}
	return &existing, false, nil
}

func (s *GormMintStore) CompleteAttempt(ctx context.Context, key string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.MintAttempt{}).
		Where("idempotency_key = ? AND status = ?", key, models.MintBuilt).
		Update("status", models.MintCompleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type GormFactionStore struct {
	DB *gorm.DB
}

func (s *GormFactionStore) Contribute(ctx context.Context, streamerID, faction string, points int64) error {
	row := models.FactionWarScore{StreamerID: streamerID, Faction: faction, Score: points}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "streamer_id"}, {Name: "faction"}},
		DoUpdates: clause.Assignments(map[string]any{
			"score":      gorm.Expr("faction_war_scores.score + ?", points),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
}

func (s *GormFactionStore) Standings(ctx context.Context, streamerID string) ([]models.FactionWarScore, error) {
	var out []models.FactionWarScore
	err := s.DB.WithContext(ctx).
		Where("streamer_id = ?", streamerID).
		Order("score DESC, faction ASC").
		Find(&out).Error
	return out, err
}

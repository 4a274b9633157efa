package services

import (
	"context"
	"errors"
	"math"
	"time"

	"resistance-server/models"
	"resistance-server/stores"

	log "github.com/sirupsen/logrus"
)

const (
	maxMissionHP    = 10000
	maxMissionTurns = 100
)

type SyncConfig struct {
	MinInterval        time.Duration
	MaxDeltaXP         int64
	MissionMinDuration time.Duration
}

var DefaultSyncConfig = SyncConfig{
	MinInterval:        2 * time.Second,
	MaxDeltaXP:         5000,
	MissionMinDuration: 30 * time.Second,
}

// SyncService merges client progress into the server record under strict
// bounds. Every reward is recomputed here; client numbers only select rows
// of server tables.
type SyncService struct {
	Players   stores.PlayerStore
	Factions  *FactionService
	Streamers *StreamerRegistry

	cfg   SyncConfig
	clock Clock
	roll  Roller
}

func NewSyncService(players stores.PlayerStore, factions *FactionService, streamers *StreamerRegistry, cfg SyncConfig, clock Clock, roll Roller) *SyncService {
	if roll == nil {
		roll = DefaultRoller
	}
	return &SyncService{Players: players, Factions: factions, Streamers: streamers, cfg: cfg, clock: clock, roll: roll}
}

type SyncRequest struct {
	DeltaXP     int64   `json:"deltaXp"`
	DeltaWins   int64   `json:"deltaWins"`
	DeltaLosses int64   `json:"deltaLosses"`
	MissionID   *string `json:"missionId"`
	Duration    int64   `json:"duration"`
	Rank        string  `json:"rank"`
	// Inventory stays raw so SanitizeInventory sees exactly what was sent.
	Inventory         any                   `json:"inventory"`
	CompletedMissions models.MissionRecords `json:"completedMissions"`
	Faction           *string               `json:"faction"`
}

type SyncResult struct {
	NewXP         int64 `json:"newXp"`
	NewLevel      int   `json:"newLevel"`
	NewPtsBalance int64 `json:"newPtsBalance"`
	PtsGained     int64 `json:"ptsGained"`
}

func (s *SyncService) Sync(ctx context.Context, userID string, req SyncRequest) (*SyncResult, error) {
	logger := log.WithFields(log.Fields{"component": "sync.gateway", "user_id": userID})

	if req.DeltaXP < 0 || req.DeltaXP > s.cfg.MaxDeltaXP {
		logger.WithField("delta_xp", req.DeltaXP).Warn("delta xp rejected")
		return nil, invalid("delta_xp_out_of_bounds")
	}
	if req.DeltaWins != 0 && req.DeltaWins != 1 {
		return nil, invalid("delta_wins_out_of_bounds")
	}
	if req.DeltaLosses != 0 && req.DeltaLosses != 1 {
		return nil, invalid("delta_losses_out_of_bounds")
	}

	var missionID string
	var rank Rank
	if req.MissionID != nil {
		if req.Duration < s.cfg.MissionMinDuration.Milliseconds() {
			logger.WithField("duration_ms", req.Duration).Warn("mission finished too fast")
			return nil, invalid("mission_too_fast")
		}
		id, ok := s.Streamers.Resolve(*req.MissionID)
		if !ok {
			return nil, invalid("invalid_mission_id")
		}
		r, ok := ParseRank(req.Rank)
		if !ok {
			return nil, invalid("invalid_rank")
		}
		missionID, rank = id, r
	}
	if req.Faction != nil && !ValidFaction(*req.Faction) {
		return nil, invalid("invalid_faction")
	}

	p, err := s.loadPlayer(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	if err := s.pace(p, now); err != nil {
		return nil, err
	}

	var ptsGained int64
	missions := p.CompletedMissions
	if missionID != "" {
		ptsGained = ComputePtsReward(rank)
		if len(req.CompletedMissions) > 0 {
			missions = MergeClientMissions(p.CompletedMissions, req.CompletedMissions, s.Streamers.Resolve)
		}
	}
	faction := p.Faction
	if req.Faction != nil {
		faction = *req.Faction
	}
	newXP := p.XP + req.DeltaXP

	applied, err := s.Players.UpdateProgress(ctx, p.ID, p.UpdatedAt, stores.ProgressUpdate{
		XP:                newXP,
		Level:             CalculateLevel(newXP),
		Inventory:         SanitizeInventory(req.Inventory, p.Inventory),
		CompletedMissions: missions,
		Faction:           faction,
		PtsDelta:          ptsGained,
		WinsDelta:         req.DeltaWins,
		LossesDelta:       req.DeltaLosses,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, internal("sync_persist_failed", err)
	}
	if !applied {
		return nil, rateLimited("sync_in_progress", s.cfg.MinInterval)
	}

	fresh, err := s.loadPlayer(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"delta_xp": req.DeltaXP, "pts_gained": ptsGained, "mission_id": missionID}).Debug("sync accepted")
	return &SyncResult{
		NewXP:         fresh.XP,
		NewLevel:      fresh.Level,
		NewPtsBalance: fresh.PtsBalance,
		PtsGained:     ptsGained,
	}, nil
}

type MissionRequest struct {
	MissionID   string  `json:"missionId"`
	HPRemaining float64 `json:"hpRemaining"`
	MaxHP       float64 `json:"maxHp"`
	TurnsUsed   float64 `json:"turnsUsed"`
	IsBoss      bool    `json:"isBoss"`
	Duration    float64 `json:"duration"`
}

type MissionResult struct {
	Rank              string                `json:"rank"`
	XPGained          int64                 `json:"xpGained"`
	NewXP             int64                 `json:"newXp"`
	NewLevel          int                   `json:"newLevel"`
	PtsGained         int64                 `json:"ptsGained"`
	NewPtsBalance     int64                 `json:"newPtsBalance"`
	ItemsAwarded      []string              `json:"itemsAwarded"`
	NewInventory      models.Inventory      `json:"newInventory"`
	CompletedMissions models.MissionRecords `json:"completedMissions"`
}

// CompleteMission grades a PvE clear and credits its rewards.
func (s *SyncService) CompleteMission(ctx context.Context, userID string, req MissionRequest) (*MissionResult, error) {
	logger := log.WithFields(log.Fields{"component": "mission.complete", "user_id": userID})

	if req.MissionID == "" {
		return nil, invalid("missing_mission_id")
	}
	if !integral(req.MaxHP) || req.MaxHP <= 0 || req.MaxHP > maxMissionHP {
		return nil, invalid("invalid_max_hp")
	}
	if !integral(req.HPRemaining) || req.HPRemaining < 0 || req.HPRemaining > req.MaxHP {
		return nil, invalid("invalid_hp_remaining")
	}
	if !integral(req.TurnsUsed) || req.TurnsUsed < 1 || req.TurnsUsed > maxMissionTurns {
		return nil, invalid("invalid_turns_used")
	}
	if math.IsNaN(req.Duration) || req.Duration < float64(s.cfg.MissionMinDuration.Milliseconds()) {
		logger.WithField("duration_ms", req.Duration).Warn("mission finished too fast")
		return nil, invalid("mission_too_fast")
	}
	missionID, ok := s.Streamers.Resolve(req.MissionID)
	if !ok {
		return nil, invalid("invalid_mission_id")
	}

	p, err := s.loadPlayer(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	if err := s.pace(p, now); err != nil {
		return nil, err
	}

	hp, maxHP, turns := int(req.HPRemaining), int(req.MaxHP), int(req.TurnsUsed)
	rank := ComputeRank(hp, maxHP, turns, hp == 0)
	xp := ComputeXP(rank, req.IsBoss)
	pts := ComputePtsReward(rank)
	items := ComputeRewardItems(rank, s.roll)

	newXP := p.XP + xp
	level := CalculateLevel(newXP)
	inventory := GrantItems(p.Inventory, items)
	missions := MergeMissionRecord(p.CompletedMissions, missionID, rank, xp, level, now)

	applied, err := s.Players.UpdateProgress(ctx, p.ID, p.UpdatedAt, stores.ProgressUpdate{
		XP:                newXP,
		Level:             level,
		Inventory:         inventory,
		CompletedMissions: missions,
		Faction:           p.Faction,
		PtsDelta:          pts,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, internal("mission_persist_failed", err)
	}
	if !applied {
		return nil, rateLimited("sync_in_progress", s.cfg.MinInterval)
	}

	if p.Faction != models.FactionNone && rank != RankF && s.Factions != nil {
		if err := s.Factions.Contribute(ctx, missionID, p.Faction, pts); err != nil {
			logger.WithError(err).Warn("faction war contribution failed")
		}
	}

	fresh, err := s.loadPlayer(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"mission_id": missionID, "rank": rank, "xp": xp}).Info("mission completed")
	return &MissionResult{
		Rank:              string(rank),
		XPGained:          xp,
		NewXP:             fresh.XP,
		NewLevel:          fresh.Level,
		PtsGained:         pts,
		NewPtsBalance:     fresh.PtsBalance,
		ItemsAwarded:      items,
		NewInventory:      fresh.Inventory,
		CompletedMissions: fresh.CompletedMissions,
	}, nil
}

// Profile returns the caller's player record.
func (s *SyncService) Profile(ctx context.Context, userID string) (*models.Player, error) {
	return s.loadPlayer(ctx, userID)
}

func (s *SyncService) loadPlayer(ctx context.Context, userID string) (*models.Player, error) {
	p, err := s.Players.GetPlayer(ctx, userID)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, notFound("player_not_found")
		}
		return nil, internal("player_lookup_failed", err)
	}
	return p, nil
}

// pace enforces the minimum gap between accepted writes for one player.
func (s *SyncService) pace(p *models.Player, now time.Time) error {
	if p.UpdatedAt.IsZero() {
		return nil
	}
	if elapsed := now.Sub(p.UpdatedAt); elapsed < s.cfg.MinInterval {
		return rateLimited("sync_too_frequent", s.cfg.MinInterval-max(elapsed, 0))
	}
	return nil
}

func integral(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

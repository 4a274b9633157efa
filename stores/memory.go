// stores/memory.go
package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"resistance-server/models"

	"github.com/google/uuid"
)

// Memory implements every store in-process. It keeps the same conditional
// update semantics as the postgres stores and backs tests and STORE_DRIVER=memory.
type Memory struct {
	mu       sync.Mutex
	players  map[string]*models.Player
	wallets  map[string]string
	matches  map[string]*models.PvpMatch
	mints    map[string]*models.MintAttempt
	factions map[string]map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		players:  make(map[string]*models.Player),
		wallets:  make(map[string]string),
		matches:  make(map[string]*models.PvpMatch),
		mints:    make(map[string]*models.MintAttempt),
		factions: make(map[string]map[string]int64),
	}
}

// NewMemorySet exposes one Memory through every store interface.
func NewMemorySet(m *Memory) Set {
	return Set{Players: m, Matches: m, Mints: m, Factions: m}
}

// PutPlayer inserts or replaces a player. A missing id is generated.
func (s *Memory) PutPlayer(p models.Player) *models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Inventory == nil {
		p.Inventory = models.Inventory{}
	}
	if p.Faction == "" {
		p.Faction = models.FactionNone
	}
	if p.Level == 0 {
		p.Level = 1
	}
	cp := clonePlayer(&p)
	s.players[p.ID] = cp
	if p.Wallet != "" {
		s.wallets[p.Wallet] = p.ID
	}
	return clonePlayer(cp)
}

// PutMatch inserts or replaces a match without staking wagers.
func (s *Memory) PutMatch(m models.PvpMatch) *models.PvpMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.matches[m.ID] = cloneMatch(&m)
	return cloneMatch(&m)
}

func (s *Memory) GetPlayer(_ context.Context, id string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePlayer(p), nil
}

func (s *Memory) EnsureWallet(_ context.Context, wallet string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.wallets[wallet]; ok {
		return clonePlayer(s.players[id]), nil
	}
	p := &models.Player{
		ID:                uuid.NewString(),
		Wallet:            wallet,
		Level:             1,
		GLR:               1000,
		Faction:           models.FactionNone,
		Inventory:         models.Inventory{},
		CompletedMissions: models.MissionRecords{},
		CreatedAt:         time.Now(),
	}
	s.players[p.ID] = p
	s.wallets[wallet] = p.ID
	return clonePlayer(p), nil
}

func (s *Memory) UpdateProgress(_ context.Context, id string, expectUpdatedAt time.Time, u ProgressUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok || !p.UpdatedAt.Equal(expectUpdatedAt) {
		return false, nil
	}
	if p.PtsBalance+u.PtsDelta < 0 {
		return false, fmt.Errorf("update progress: %w", ErrInsufficientFunds)
	}
	p.XP = u.XP
	p.Level = u.Level
	p.Inventory = u.Inventory.Clone()
	p.CompletedMissions = u.CompletedMissions.Clone()
	p.Faction = u.Faction
	p.PtsBalance += u.PtsDelta
	p.Wins += u.WinsDelta
	p.Losses += u.LossesDelta
	p.UpdatedAt = u.UpdatedAt
	return true, nil
}

func (s *Memory) AdjustPtsBalance(_ context.Context, id string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return 0, ErrNotFound
	}
	if p.PtsBalance+amount < 0 {
		return p.PtsBalance, ErrInsufficientFunds
	}
	p.PtsBalance += amount
	return p.PtsBalance, nil
}

func (s *Memory) AdjustGLR(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return ErrNotFound
	}
	p.GLR = max(p.GLR+delta, 0)
	return nil
}

func (s *Memory) GetMatch(_ context.Context, id string) (*models.PvpMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMatch(m), nil
}

func (s *Memory) CreateMatch(_ context.Context, m *models.PvpMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, exists := s.matches[m.ID]; exists {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	if m.WagerAmount > 0 {
		for _, uid := range []string{m.AttackerID, m.DefenderID} {
			p, ok := s.players[uid]
			if !ok {
				return fmt.Errorf("stake wager for %s: %w", uid, ErrNotFound)
			}
			if p.PtsBalance < m.WagerAmount {
				return fmt.Errorf("stake wager for %s: %w", uid, ErrInsufficientFunds)
			}
		}
		s.players[m.AttackerID].PtsBalance -= m.WagerAmount
		s.players[m.DefenderID].PtsBalance -= m.WagerAmount
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.matches[m.ID] = cloneMatch(m)
	return nil
}

func (s *Memory) Transition(_ context.Context, id string, g MatchGuard, c MatchChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok || m.Status != g.Status {
		return false, nil
	}
	if g.Participant != "" && !m.IsParticipant(g.Participant) {
		return false, nil
	}
	if g.TurnNumber != nil && m.TurnNumber != *g.TurnNumber {
		return false, nil
	}
	if g.TurnPlayerID != nil && (m.TurnPlayerID == nil || *m.TurnPlayerID != *g.TurnPlayerID) {
		return false, nil
	}
	if g.TurnPlayerUnset && m.TurnPlayerID != nil {
		return false, nil
	}
	if g.LastUpdate != nil && !m.LastUpdate.Equal(*g.LastUpdate) {
		return false, nil
	}
	if g.LastUpdateAtOrBefore != nil && m.LastUpdate.After(*g.LastUpdateAtOrBefore) {
		return false, nil
	}

	if c.AttackerHP != nil {
		m.AttackerHP = *c.AttackerHP
	}
	if c.DefenderHP != nil {
		m.DefenderHP = *c.DefenderHP
	}
	if c.TurnPlayerID != nil {
		v := *c.TurnPlayerID
		m.TurnPlayerID = &v
	}
	if c.TurnNumber != nil {
		m.TurnNumber = *c.TurnNumber
	}
	if c.Status != nil {
		m.Status = *c.Status
	}
	if c.WinnerID != nil {
		v := *c.WinnerID
		m.WinnerID = &v
	}
	m.LastUpdate = c.LastUpdate
	return true, nil
}

func (s *Memory) ListArchivable(_ context.Context, finishedBefore time.Time, limit int) ([]models.PvpMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PvpMatch
	for _, m := range s.matches {
		if m.Status == models.MatchFinished && m.ArchivedAt == nil && m.LastUpdate.Before(finishedBefore) {
			out = append(out, *cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdate.Before(out[j].LastUpdate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) MarkArchived(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok || m.Status != models.MatchFinished || m.ArchivedAt != nil {
		return false, nil
	}
	m.ArchivedAt = &at
	return true, nil
}

func (s *Memory) CreateAttempt(_ context.Context, key, userID string) (*models.MintAttempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.mints[key]; ok {
		if a.UserID != userID {
			return nil, false, ErrConflict
		}
		cp := *a
		return &cp, false, nil
	}
	now := time.Now()
	a := &models.MintAttempt{IdempotencyKey: key, UserID: userID, Status: models.MintBuilt, CreatedAt: now, UpdatedAt: now}
	s.mints[key] = a
	cp := *a
	return &cp, true, nil
}

func (s *Memory) CompleteAttempt(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.mints[key]
	if !ok || a.Status != models.MintBuilt {
		return false, nil
	}
	a.Status = models.MintCompleted
	a.UpdatedAt = time.Now()
	return true, nil
}

func (s *Memory) Contribute(_ context.Context, streamerID, faction string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byFaction, ok := s.factions[streamerID]
	if !ok {
		byFaction = make(map[string]int64)
		s.factions[streamerID] = byFaction
	}
	byFaction[faction] += points
	return nil
}

func (s *Memory) Standings(_ context.Context, streamerID string) ([]models.FactionWarScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FactionWarScore
	for faction, score := range s.factions[streamerID] {
		out = append(out, models.FactionWarScore{StreamerID: streamerID, Faction: faction, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Faction < out[j].Faction
	})
	return out, nil
}

func clonePlayer(p *models.Player) *models.Player {
	cp := *p
	cp.Inventory = p.Inventory.Clone()
	cp.CompletedMissions = p.CompletedMissions.Clone()
	return &cp
}

func cloneMatch(m *models.PvpMatch) *models.PvpMatch {
	cp := *m
	if m.TurnPlayerID != nil {
		v := *m.TurnPlayerID
		cp.TurnPlayerID = &v
	}
	if m.WinnerID != nil {
		v := *m.WinnerID
		cp.WinnerID = &v
	}
	if m.ArchivedAt != nil {
		v := *m.ArchivedAt
		cp.ArchivedAt = &v
	}
	return &cp
}

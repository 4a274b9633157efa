package services

import (
	"context"
	"errors"
	"math"
	"time"

	"resistance-server/models"
	"resistance-server/stores"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	ForfeitReasonDisconnect = "opponent_disconnect"

	OutcomeWaiting  = "waiting"
	OutcomeTimedOut = "turn_reassigned"
	OutcomeFinished = "finished"

	maxStatValue = 10000
)

type MatchConfig struct {
	ForfeitWindow         time.Duration
	TurnTimeout           time.Duration
	TimeoutPenaltyPercent int
	GLRDelta              int
}

var DefaultMatchConfig = MatchConfig{
	ForfeitWindow:         25 * time.Second,
	TurnTimeout:           30 * time.Second,
	TimeoutPenaltyPercent: 10,
	GLRDelta:              16,
}

// MatchNotifier is told about every accepted transition so connected
// clients can resync. Delivery is best effort.
type MatchNotifier interface {
	MatchUpdated(ctx context.Context, view MatchView, reason string)
}

// MatchView is the server truth for a match. HP is always named by role.
type MatchView struct {
	MatchID       string     `json:"matchId"`
	Status        string     `json:"status"`
	AttackerID    string     `json:"attackerId"`
	DefenderID    string     `json:"defenderId"`
	AttackerHP    int        `json:"attackerHp"`
	DefenderHP    int        `json:"defenderHp"`
	AttackerMaxHP int        `json:"attackerMaxHp"`
	DefenderMaxHP int        `json:"defenderMaxHp"`
	TurnPlayerID  *string    `json:"turnPlayerId"`
	Turn          int        `json:"turn"`
	WinnerID      *string    `json:"winnerId"`
	WagerAmount   int64      `json:"wagerAmount"`
	LastUpdate    time.Time  `json:"lastUpdate"`
	YourRole      string     `json:"yourRole,omitempty"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
}

func viewOf(m *models.PvpMatch, viewer string) MatchView {
	role := m.Role(viewer)
	if role == "" && viewer != "" {
		role = "spectator"
	}
	return MatchView{
		MatchID:       m.ID,
		Status:        string(m.Status),
		AttackerID:    m.AttackerID,
		DefenderID:    m.DefenderID,
		AttackerHP:    m.AttackerHP,
		DefenderHP:    m.DefenderHP,
		AttackerMaxHP: m.AttackerStats.MaxHP,
		DefenderMaxHP: m.DefenderStats.MaxHP,
		TurnPlayerID:  m.TurnPlayerID,
		Turn:          m.TurnNumber,
		WinnerID:      m.WinnerID,
		WagerAmount:   m.WagerAmount,
		LastUpdate:    m.LastUpdate,
		YourRole:      role,
		ArchivedAt:    m.ArchivedAt,
	}
}

// MatchService owns every PvP state transition.
type MatchService struct {
	Matches  stores.MatchStore
	Players  stores.PlayerStore
	Notifier MatchNotifier

	cfg   MatchConfig
	clock Clock
	roll  Roller
}

func NewMatchService(matches stores.MatchStore, players stores.PlayerStore, cfg MatchConfig, clock Clock, roll Roller) *MatchService {
	if roll == nil {
		roll = DefaultRoller
	}
	return &MatchService{Matches: matches, Players: players, cfg: cfg, clock: clock, roll: roll}
}

// ParseMatchID accepts only the canonical 36-character form and lower-cases it.
func ParseMatchID(raw string) (string, bool) {
	if len(raw) != 36 {
		return "", false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func (s *MatchService) load(ctx context.Context, id string) (*models.PvpMatch, error) {
	m, err := s.Matches.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, notFound("match_not_found")
		}
		return nil, internal("match_lookup_failed", err)
	}
	return m, nil
}

func finishedConflict(m *models.PvpMatch) *Error {
	e := conflict("match_finished")
	if m.WinnerID != nil {
		e.WinnerID = *m.WinnerID
	}
	e.State = viewOf(m, "")
	return e
}

func holdsTurn(m *models.PvpMatch, callerID string) *Error {
	e := conflict("caller_holds_turn")
	e.State = viewOf(m, callerID)
	return e
}

// ForfeitResult is returned to the caller who claimed the win.
type ForfeitResult struct {
	WinnerID      string `json:"winnerId"`
	LoserID       string `json:"loserId"`
	WagerReturned int64  `json:"wagerReturned"`
	Reason        string `json:"reason"`
}

// Forfeit lets the waiting participant claim a match whose turn holder has
// gone quiet for at least the forfeit window. The holder can never forfeit:
// they must move or let the turn timeout penalise them.
func (s *MatchService) Forfeit(ctx context.Context, callerID, rawMatchID string) (*ForfeitResult, error) {
	logger := log.WithFields(log.Fields{"component": "pvp.forfeit", "user_id": callerID, "match_id": rawMatchID})

	matchID, ok := ParseMatchID(rawMatchID)
	if !ok {
		return nil, invalid("invalid_match_id")
	}
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(callerID) {
		logger.Warn("forfeit by non-participant")
		return nil, forbidden("not_a_participant")
	}
	if m.Status == models.MatchFinished {
		return nil, finishedConflict(m)
	}

	if m.TurnHolder() == callerID {
		logger.WithField("turn", m.TurnNumber).Warn("forfeit by turn holder")
		return nil, holdsTurn(m, callerID)
	}

	now := s.clock.now()
	if idle := now.Sub(m.LastUpdate); idle < s.cfg.ForfeitWindow {
		return nil, tooEarly("opponent_recently_active", s.cfg.ForfeitWindow-idle)
	}

	cutoff := now.Add(-s.cfg.ForfeitWindow)
	guard := stores.MatchGuard{Status: models.MatchActive, Participant: callerID, LastUpdateAtOrBefore: &cutoff}
	opponent := m.Opponent(callerID)
	if m.TurnPlayerID != nil {
		guard.TurnPlayerID = &opponent
	} else {
		guard.TurnPlayerUnset = true
	}
	finished := models.MatchFinished
	winner := callerID
	applied, err := s.Matches.Transition(ctx, matchID, guard,
		stores.MatchChange{Status: &finished, WinnerID: &winner, LastUpdate: now},
	)
	if err != nil {
		return nil, internal("forfeit_failed", err)
	}
	if !applied {
		cur, err := s.load(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if cur.Status == models.MatchFinished {
			return nil, finishedConflict(cur)
		}
		if cur.TurnHolder() == callerID {
			return nil, holdsTurn(cur, callerID)
		}
		return nil, tooEarly("opponent_recently_active", max(s.cfg.ForfeitWindow-now.Sub(cur.LastUpdate), 0))
	}

	m.Status, m.WinnerID, m.LastUpdate = finished, &winner, now
	loser := m.Opponent(callerID)
	paid := s.settle(ctx, m, callerID, loser, "pvp.forfeit")
	logger.WithFields(log.Fields{"winner_id": callerID, "loser_id": loser, "paid": paid}).Info("match forfeited")
	s.notify(ctx, m, "forfeit")

	return &ForfeitResult{
		WinnerID:      callerID,
		LoserID:       loser,
		WagerReturned: paid,
		Reason:        ForfeitReasonDisconnect,
	}, nil
}

// settle pays the pot and moves GLR once a match has been finished by this
// caller. Failures are logged and never undo the finished state.
func (s *MatchService) settle(ctx context.Context, m *models.PvpMatch, winnerID, loserID, component string) int64 {
	logger := log.WithFields(log.Fields{"component": component, "match_id": m.ID, "winner_id": winnerID})

	var paid int64
	if pot := m.WagerAmount * 2; pot > 0 {
		if _, err := s.Players.AdjustPtsBalance(ctx, winnerID, pot); err != nil {
			logger.WithError(err).Error("wager payout failed")
		} else {
			paid = pot
		}
	}
	if s.cfg.GLRDelta != 0 {
		if err := s.Players.AdjustGLR(ctx, winnerID, s.cfg.GLRDelta); err != nil {
			logger.WithError(err).Warn("glr update failed for winner")
		}
		if loserID != "" {
			if err := s.Players.AdjustGLR(ctx, loserID, -s.cfg.GLRDelta); err != nil {
				logger.WithError(err).Warn("glr update failed for loser")
			}
		}
	}
	return paid
}

func (s *MatchService) notify(ctx context.Context, m *models.PvpMatch, reason string) {
	if s.Notifier != nil {
		s.Notifier.MatchUpdated(ctx, viewOf(m, ""), reason)
	}
}

// TurnState answers a turn-timeout poll.
type TurnState struct {
	MatchView
	Outcome           string `json:"outcome"`
	TimedOut          bool   `json:"timedOut"`
	Penalty           int    `json:"penalty,omitempty"`
	PenalizedPlayerID string `json:"penalizedPlayerId,omitempty"`
	SecondsWaited     int    `json:"secondsWaited"`
}

func (s *MatchService) turnState(m *models.PvpMatch, viewer string, now time.Time) *TurnState {
	st := &TurnState{MatchView: viewOf(m, viewer), Outcome: OutcomeWaiting}
	if m.Status == models.MatchFinished {
		st.Outcome = OutcomeFinished
		return st
	}
	st.SecondsWaited = int(max(now.Sub(m.LastUpdate), 0) / time.Second)
	return st
}

// CheckTurnTimeout is polled by clients. When the turn holder has been idle
// past the turn timeout the default action runs: the holder loses a share of
// max HP and the turn passes on, or the match ends if HP reaches zero.
func (s *MatchService) CheckTurnTimeout(ctx context.Context, callerID, rawMatchID string) (*TurnState, error) {
	matchID, ok := ParseMatchID(rawMatchID)
	if !ok {
		return nil, invalid("invalid_match_id")
	}
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(callerID) {
		return nil, forbidden("not_a_participant")
	}
	now := s.clock.now()
	if m.Status == models.MatchFinished {
		return s.turnState(m, callerID, now), nil
	}

	if m.TurnPlayerID == nil {
		attacker := m.AttackerID
		turn := m.TurnNumber
		applied, err := s.Matches.Transition(ctx, matchID,
			stores.MatchGuard{Status: models.MatchActive, TurnPlayerUnset: true, TurnNumber: &turn},
			stores.MatchChange{TurnPlayerID: &attacker, LastUpdate: now},
		)
		if err != nil {
			return nil, internal("turn_assign_failed", err)
		}
		if applied {
			log.WithFields(log.Fields{"component": "pvp.timeout", "match_id": matchID}).Info("unset turn assigned to attacker")
		}
		cur, err := s.load(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if applied {
			s.notify(ctx, cur, "turn_assigned")
		}
		return s.turnState(cur, callerID, now), nil
	}

	if now.Sub(m.LastUpdate) < s.cfg.TurnTimeout {
		return s.turnState(m, callerID, now), nil
	}

	holder := *m.TurnPlayerID
	other := m.Opponent(holder)
	if other == "" {
		return nil, internal("turn_holder_not_participant", errors.New("turn_player_id is not a participant"))
	}

	hp, maxHP := m.AttackerHP, m.AttackerStats.MaxHP
	if holder == m.DefenderID {
		hp, maxHP = m.DefenderHP, m.DefenderStats.MaxHP
	}
	penalty := s.timeoutPenalty(maxHP, hp)
	newHP := max(hp-penalty, 0)
	nextTurn := m.TurnNumber + 1

	change := stores.MatchChange{LastUpdate: now}
	if holder == m.AttackerID {
		change.AttackerHP = &newHP
	} else {
		change.DefenderHP = &newHP
	}
	finished := newHP == 0
	if finished {
		status := models.MatchFinished
		change.Status = &status
		change.WinnerID = &other
	} else {
		change.TurnPlayerID = &other
		change.TurnNumber = &nextTurn
	}

	lastSeen := m.LastUpdate
	turn := m.TurnNumber
	applied, err := s.Matches.Transition(ctx, matchID,
		stores.MatchGuard{Status: models.MatchActive, TurnNumber: &turn, TurnPlayerID: &holder, LastUpdate: &lastSeen},
		change,
	)
	if err != nil {
		return nil, internal("timeout_failed", err)
	}
	cur, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.turnState(cur, callerID, now), nil
	}

	logger := log.WithFields(log.Fields{"component": "pvp.timeout", "match_id": matchID, "holder_id": holder, "penalty": penalty})
	st := s.turnState(cur, callerID, now)
	st.TimedOut = true
	st.Penalty = penalty
	st.PenalizedPlayerID = holder
	if finished {
		s.settle(ctx, cur, other, holder, "pvp.timeout")
		logger.Info("turn timeout finished the match")
		st.Outcome = OutcomeFinished
		s.notify(ctx, cur, "timeout_finished")
	} else {
		logger.Info("turn timeout, turn reassigned")
		st.Outcome = OutcomeTimedOut
		s.notify(ctx, cur, "turn_timeout")
	}
	return st, nil
}

func (s *MatchService) timeoutPenalty(maxHP, hp int) int {
	if maxHP <= 0 {
		maxHP = hp
	}
	p := int(math.Ceil(float64(maxHP) * float64(s.cfg.TimeoutPenaltyPercent) / 100))
	return max(p, 1)
}

type MoveRequest struct {
	MatchID  string `json:"matchId"`
	Move     string `json:"move"`
	Turn     int    `json:"turn"`
	ActionID string `json:"actionId,omitempty"`
}

type MoveResult struct {
	MatchView
	Move          string  `json:"move"`
	Damage        int     `json:"damage"`
	Effectiveness float64 `json:"effectiveness"`
	IsCrit        bool    `json:"isCrit"`
	IsComplete    bool    `json:"isComplete"`
	NextHP        int     `json:"nextHp"`
	GLRChange     int     `json:"glrChange"`
	ActionID      string  `json:"actionId,omitempty"`
}

// ApplyMove validates and resolves one move. The caller must hold the turn
// the client believes it is on; anything else is a stale move.
func (s *MatchService) ApplyMove(ctx context.Context, callerID string, req MoveRequest) (*MoveResult, error) {
	matchID, ok := ParseMatchID(req.MatchID)
	if !ok {
		return nil, invalid("invalid_match_id")
	}
	move, ok := ParseMove(req.Move)
	if !ok {
		return nil, invalid("invalid_move")
	}
	if req.Turn < 1 {
		return nil, invalid("invalid_turn")
	}
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(callerID) {
		return nil, forbidden("not_a_participant")
	}
	if m.Status == models.MatchFinished {
		return nil, finishedConflict(m)
	}

	guard := stores.MatchGuard{Status: models.MatchActive, Participant: callerID}
	holder := m.TurnHolder()
	if m.TurnPlayerID != nil {
		guard.TurnPlayerID = &holder
	} else {
		guard.TurnPlayerUnset = true
	}
	if holder != callerID {
		return nil, s.staleMove("not_your_turn", m, callerID)
	}
	if req.Turn != m.TurnNumber {
		return nil, s.staleMove("stale_turn", m, callerID)
	}
	turn := m.TurnNumber
	guard.TurnNumber = &turn

	opponent := m.Opponent(callerID)
	atk, def, defHP := m.AttackerStats, m.DefenderStats, m.DefenderHP
	if callerID == m.DefenderID {
		atk, def, defHP = m.DefenderStats, m.AttackerStats, m.AttackerHP
	}
	hit := ResolveHit(move, atk, def, s.roll)
	nextHP := max(defHP-hit.Damage, 0)

	now := s.clock.now()
	nextTurn := turn + 1
	change := stores.MatchChange{TurnNumber: &nextTurn, LastUpdate: now}
	if opponent == m.AttackerID {
		change.AttackerHP = &nextHP
	} else {
		change.DefenderHP = &nextHP
	}
	complete := nextHP == 0
	if complete {
		status := models.MatchFinished
		winner := callerID
		change.Status = &status
		change.WinnerID = &winner
	} else {
		change.TurnPlayerID = &opponent
	}

	applied, err := s.Matches.Transition(ctx, matchID, guard, change)
	if err != nil {
		return nil, internal("move_failed", err)
	}
	cur, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !applied {
		if cur.Status == models.MatchFinished {
			return nil, finishedConflict(cur)
		}
		return nil, s.staleMove("stale_turn", cur, callerID)
	}

	res := &MoveResult{
		MatchView:     viewOf(cur, callerID),
		Move:          string(move),
		Damage:        hit.Damage,
		Effectiveness: hit.Effectiveness,
		IsCrit:        hit.IsCrit,
		IsComplete:    complete,
		NextHP:        nextHP,
		ActionID:      req.ActionID,
	}
	if complete {
		s.settle(ctx, cur, callerID, opponent, "pvp.move")
		res.GLRChange = s.cfg.GLRDelta
		log.WithFields(log.Fields{"component": "pvp.move", "match_id": matchID, "winner_id": callerID}).Info("match won")
		s.notify(ctx, cur, "match_won")
	} else {
		s.notify(ctx, cur, "move")
	}
	return res, nil
}

func (s *MatchService) staleMove(reason string, m *models.PvpMatch, viewer string) *Error {
	e := conflict(reason)
	e.State = viewOf(m, viewer)
	return e
}

// Snapshot returns the current truth for reconnect catch-up.
func (s *MatchService) Snapshot(ctx context.Context, viewerID, rawMatchID string) (*MatchView, error) {
	matchID, ok := ParseMatchID(rawMatchID)
	if !ok {
		return nil, invalid("invalid_match_id")
	}
	m, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	v := viewOf(m, viewerID)
	return &v, nil
}

type CreateMatchRequest struct {
	AttackerID    string             `json:"attackerId"`
	DefenderID    string             `json:"defenderId"`
	AttackerStats models.CombatStats `json:"attackerStats"`
	DefenderStats models.CombatStats `json:"defenderStats"`
	WagerAmount   int64              `json:"wagerAmount"`
}

// CreateMatch stakes both wagers and opens an ACTIVE match. The faster
// combatant moves first; ties go to the attacker.
func (s *MatchService) CreateMatch(ctx context.Context, req CreateMatchRequest) (*MatchView, error) {
	attacker, ok := ParseMatchID(req.AttackerID)
	if !ok {
		return nil, invalid("invalid_attacker_id")
	}
	defender, ok := ParseMatchID(req.DefenderID)
	if !ok {
		return nil, invalid("invalid_defender_id")
	}
	if attacker == defender {
		return nil, invalid("self_match")
	}
	if req.WagerAmount < 0 {
		return nil, invalid("invalid_wager")
	}
	if !validStats(req.AttackerStats) || !validStats(req.DefenderStats) {
		return nil, invalid("invalid_stats")
	}

	first := attacker
	if req.DefenderStats.Speed > req.AttackerStats.Speed {
		first = defender
	}
	now := s.clock.now()
	m := &models.PvpMatch{
		ID:            uuid.NewString(),
		AttackerID:    attacker,
		DefenderID:    defender,
		AttackerHP:    req.AttackerStats.MaxHP,
		DefenderHP:    req.DefenderStats.MaxHP,
		AttackerStats: req.AttackerStats,
		DefenderStats: req.DefenderStats,
		TurnPlayerID:  &first,
		TurnNumber:    1,
		Status:        models.MatchActive,
		WagerAmount:   req.WagerAmount,
		LastUpdate:    now,
	}
	if err := s.Matches.CreateMatch(ctx, m); err != nil {
		switch {
		case errors.Is(err, stores.ErrInsufficientFunds):
			return nil, conflict("insufficient_funds")
		case errors.Is(err, stores.ErrNotFound):
			return nil, notFound("player_not_found")
		}
		return nil, internal("match_create_failed", err)
	}
	log.WithFields(log.Fields{"component": "pvp.create", "match_id": m.ID, "wager": m.WagerAmount}).Info("match created")
	s.notify(ctx, m, "created")
	v := viewOf(m, "")
	return &v, nil
}

func validStats(st models.CombatStats) bool {
	return st.MaxHP > 0 && st.MaxHP <= maxStatValue &&
		st.Attack >= 0 && st.Attack <= maxStatValue &&
		st.Defense >= 0 && st.Defense <= maxStatValue &&
		st.Speed >= 0 && st.Speed <= maxStatValue &&
		ValidElement(st.Element)
}

package services

import (
	"context"
	"fmt"

	"resistance-server/models"
	"resistance-server/stores"
)

// ValidFaction reports whether f is one of RED, PURPLE or NONE.
func ValidFaction(f string) bool {
	switch f {
	case models.FactionRed, models.FactionPurple, models.FactionNone:
		return true
	}
	return false
}

type FactionService struct {
	Factions  stores.FactionStore
	Streamers *StreamerRegistry
}

func NewFactionService(factions stores.FactionStore, streamers *StreamerRegistry) *FactionService {
	return &FactionService{Factions: factions, Streamers: streamers}
}

// Contribute adds points to faction's score on a streamer's war board.
func (s *FactionService) Contribute(ctx context.Context, streamerID, faction string, points int64) error {
	if faction != models.FactionRed && faction != models.FactionPurple {
		return fmt.Errorf("faction %q cannot contribute", faction)
	}
	if points <= 0 {
		return nil
	}
	return s.Factions.Contribute(ctx, streamerID, faction, points)
}

type FactionScore struct {
	Faction string `json:"faction"`
	Score   int64  `json:"score"`
}

type FactionStandings struct {
	StreamerID string         `json:"streamerId"`
	Leader     string         `json:"leader"`
	Scores     []FactionScore `json:"scores"`
}

func (s *FactionService) Standings(ctx context.Context, rawStreamerID string) (*FactionStandings, error) {
	id, ok := s.Streamers.Resolve(rawStreamerID)
	if !ok {
		return nil, notFound("unknown_streamer")
	}
	rows, err := s.Factions.Standings(ctx, id)
	if err != nil {
		return nil, internal("standings_failed", err)
	}
	scores := map[string]int64{models.FactionRed: 0, models.FactionPurple: 0}
	for _, r := range rows {
		scores[r.Faction] = r.Score
	}
	out := &FactionStandings{
		StreamerID: id,
		Leader:     models.FactionNone,
		Scores: []FactionScore{
			{Faction: models.FactionRed, Score: scores[models.FactionRed]},
			{Faction: models.FactionPurple, Score: scores[models.FactionPurple]},
		},
	}
	switch {
	case scores[models.FactionRed] > scores[models.FactionPurple]:
		out.Leader = models.FactionRed
	case scores[models.FactionPurple] > scores[models.FactionRed]:
		out.Leader = models.FactionPurple
	}
	return out, nil
}

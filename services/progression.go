package services

import (
	"math"
	"time"

	"resistance-server/models"
)

// Rank grades a mission clear.
type Rank string

const (
	RankS Rank = "S"
	RankA Rank = "A"
	RankB Rank = "B"
	RankF Rank = "F"
)

// ParseRank accepts exactly S, A, B or F.
func ParseRank(s string) (Rank, bool) {
	switch r := Rank(s); r {
	case RankS, RankA, RankB, RankF:
		return r, true
	}
	return "", false
}

// Weight orders ranks: S > A > B > F.
func (r Rank) Weight() int {
	switch r {
	case RankS:
		return 3
	case RankA:
		return 2
	case RankB:
		return 1
	}
	return 0
}

func (r Rank) Outranks(other Rank) bool { return r.Weight() > other.Weight() }

const (
	// LevelCap is the highest level CalculateLevel ever returns.
	LevelCap = 50
	// XPPerLevelUnit scales the square-root level curve.
	XPPerLevelUnit = 100

	MaxItemQuantity = 99

	baseXP     = 50
	bossBaseXP = 150
)

// ComputeRank grades a clear. Thresholds are strict: 80% HP is an A, not an S.
func ComputeRank(hpRemaining, maxHP, turnsUsed int, isFailure bool) Rank {
	if isFailure || maxHP <= 0 {
		return RankF
	}
	hpPercent := float64(hpRemaining) / float64(maxHP) * 100
	switch {
	case hpPercent > 80 && turnsUsed < 10:
		return RankS
	case hpPercent > 50 || turnsUsed < 15:
		return RankA
	default:
		return RankB
	}
}

// ComputeXP returns floor(base * multiplier). Multipliers are kept in tenths
// so the floor is exact.
func ComputeXP(rank Rank, isBoss bool) int64 {
	base := int64(baseXP)
	if isBoss {
		base = bossBaseXP
	}
	var tenths int64
	switch rank {
	case RankS:
		tenths = 15
	case RankA:
		tenths = 12
	default:
		tenths = 10
	}
	return base * tenths / 10
}

var ptsTable = map[Rank]int64{
	RankS: 100,
	RankA: 50,
	RankB: 25,
	RankF: 0,
}

func ComputePtsReward(rank Rank) int64 {
	return ptsTable[rank]
}

var rewardPools = map[Rank][]string{
	RankS: {"OVERCLOCK_MODULE", "NEURAL_LINK", "EMP_GRENADE", "RESTORE_CHIP"},
	RankA: {"EMP_GRENADE", "SHIELD_CELL", "RESTORE_CHIP"},
	RankB: {"RESTORE_CHIP", "DATA_SHARD"},
	RankF: {"DATA_SHARD"},
}

var rewardCounts = map[Rank]int{RankS: 3, RankA: 2, RankB: 1, RankF: 1}

// RewardPool returns the items rank can drop.
func RewardPool(rank Rank) []string {
	return append([]string(nil), rewardPools[rank]...)
}

// ComputeRewardItems samples uniformly with replacement from the rank's pool.
func ComputeRewardItems(rank Rank, roll Roller) []string {
	pool := rewardPools[rank]
	n := rewardCounts[rank]
	if len(pool) == 0 || n == 0 {
		return nil
	}
	items := make([]string, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, pool[roll.IntN(len(pool))])
	}
	return items
}

// CalculateLevel is floor(sqrt(xp/100)) + 1, capped at LevelCap.
func CalculateLevel(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	level := isqrt(xp/XPPerLevelUnit) + 1
	if level > LevelCap {
		return LevelCap
	}
	return int(level)
}

// XPForLevel is the minimum xp that yields level.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level - 1)
	return l * l * XPPerLevelUnit
}

func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r := int64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

// InventoryWhitelist lists every item id a player may hold.
var InventoryWhitelist = map[string]struct{}{
	"RESTORE_CHIP":     {},
	"SHIELD_CELL":      {},
	"EMP_GRENADE":      {},
	"OVERCLOCK_MODULE": {},
	"NEURAL_LINK":      {},
	"DATA_SHARD":       {},
	"SIGNAL_JAMMER":    {},
}

// SanitizeInventory turns a decoded client inventory into a trusted one.
// client is the raw JSON value; anything but an object keeps server unchanged.
// Unknown keys are dropped, non-numeric quantities become 0, and numbers are
// floored and clamped to [0, MaxItemQuantity].
func SanitizeInventory(client any, server models.Inventory) models.Inventory {
	obj, ok := client.(map[string]any)
	if !ok {
		return server.Clone()
	}
	out := make(models.Inventory, len(obj))
	for key, raw := range obj {
		if _, allowed := InventoryWhitelist[key]; !allowed {
			continue
		}
		out[key] = clampQuantity(toFloat(raw))
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func clampQuantity(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	f = math.Floor(f)
	if f > MaxItemQuantity {
		return MaxItemQuantity
	}
	return int(f)
}

// GrantItems adds one of each awarded item, clamped at MaxItemQuantity.
func GrantItems(inv models.Inventory, items []string) models.Inventory {
	out := inv.Clone()
	for _, item := range items {
		if _, allowed := InventoryWhitelist[item]; !allowed {
			continue
		}
		out[item] = min(out[item]+1, MaxItemQuantity)
	}
	return out
}

// MergeMissionRecord folds one server-validated clear into the history.
// Repeat clears add xp; rank, clearedAt and level change only on a strict upgrade.
func MergeMissionRecord(records models.MissionRecords, missionID string, rank Rank, xp int64, level int, now time.Time) models.MissionRecords {
	out := records.Clone()
	for i := range out {
		if out[i].ID != missionID {
			continue
		}
		out[i].XP += xp
		prev, _ := ParseRank(out[i].Rank)
		if rank.Outranks(prev) {
			out[i].Rank = string(rank)
			out[i].ClearedAt = now
			out[i].Level = level
		}
		return out
	}
	return append(out, models.MissionRecord{
		ID:        missionID,
		Rank:      string(rank),
		ClearedAt: now,
		XP:        xp,
		Level:     level,
	})
}

// MergeClientMissions folds a client-reported history into the server's.
// Nothing the server knows is ever removed; entries only move upward.
func MergeClientMissions(server, client models.MissionRecords, validID func(string) (string, bool)) models.MissionRecords {
	out := server.Clone()
	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.ID] = i
	}
	for _, c := range client {
		id, ok := validID(c.ID)
		if !ok {
			continue
		}
		rank, ok := ParseRank(c.Rank)
		if !ok {
			continue
		}
		xp := max(c.XP, 0)
		level := min(max(c.Level, 1), LevelCap)
		if i, seen := index[id]; seen {
			prev, _ := ParseRank(out[i].Rank)
			if rank.Outranks(prev) {
				out[i].Rank = string(rank)
				out[i].ClearedAt = c.ClearedAt
				out[i].Level = level
			}
			out[i].XP = max(out[i].XP, xp)
			continue
		}
		index[id] = len(out)
		out = append(out, models.MissionRecord{ID: id, Rank: string(rank), ClearedAt: c.ClearedAt, XP: xp, Level: level})
	}
	return out
}

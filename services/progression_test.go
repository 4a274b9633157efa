package services

import (
	"encoding/json"
	"testing"
	"time"

	"resistance-server/models"
)

// seqRoller replays fixed values; IntN wraps them into range.
type seqRoller struct {
	floats []float64
	ints   []int
}

func (r *seqRoller) Float64() float64 {
	if len(r.floats) == 0 {
		return 0.99
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *seqRoller) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func TestCalculateLevel(t *testing.T) {
	cases := []struct {
		xp   int64
		want int
	}{
		{-50, 1},
		{0, 1},
		{75, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{250000, 50},
		{1 << 40, LevelCap},
	}
	for _, tc := range cases {
		if got := CalculateLevel(tc.xp); got != tc.want {
			t.Errorf("CalculateLevel(%d) = %d, want %d", tc.xp, got, tc.want)
		}
	}
}

func TestCalculateLevelInvertsXPForLevel(t *testing.T) {
	for level := 1; level <= 20; level++ {
		if got := CalculateLevel(XPForLevel(level)); got != level {
			t.Errorf("CalculateLevel(XPForLevel(%d)) = %d", level, got)
		}
		if level > 1 {
			if got := CalculateLevel(XPForLevel(level) - 1); got != level-1 {
				t.Errorf("one xp short of level %d gives %d", level, got)
			}
		}
	}
}

func TestComputeRankBoundaries(t *testing.T) {
	cases := []struct {
		name            string
		hp, maxHP, turn int
		failure         bool
		want            Rank
	}{
		{"S just above 80%", 81, 100, 9, false, RankS},
		{"80% is not S", 80, 100, 9, false, RankA},
		{"10 turns is not S", 95, 100, 10, false, RankA},
		{"failure", 0, 100, 5, true, RankF},
		{"low hp but fast", 10, 100, 14, false, RankA},
		{"half hp slow", 50, 100, 15, false, RankB},
		{"zero max hp", 10, 0, 1, false, RankF},
	}
	for _, tc := range cases {
		if got := ComputeRank(tc.hp, tc.maxHP, tc.turn, tc.failure); got != tc.want {
			t.Errorf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestComputeXP(t *testing.T) {
	cases := []struct {
		rank Rank
		boss bool
		want int64
	}{
		{RankS, false, 75},
		{RankA, false, 60},
		{RankB, false, 50},
		{RankF, false, 50},
		{RankS, true, 225},
		{RankA, true, 180},
		{RankB, true, 150},
	}
	for _, tc := range cases {
		if got := ComputeXP(tc.rank, tc.boss); got != tc.want {
			t.Errorf("ComputeXP(%s, %v) = %d, want %d", tc.rank, tc.boss, got, tc.want)
		}
	}
}

func TestComputePtsReward(t *testing.T) {
	want := map[Rank]int64{RankS: 100, RankA: 50, RankB: 25, RankF: 0}
	for r, pts := range want {
		if got := ComputePtsReward(r); got != pts {
			t.Errorf("ComputePtsReward(%s) = %d, want %d", r, got, pts)
		}
	}
}

func TestComputeRewardItemsCountsAndPools(t *testing.T) {
	counts := map[Rank]int{RankS: 3, RankA: 2, RankB: 1, RankF: 1}
	for rank, n := range counts {
		pool := map[string]bool{}
		for _, item := range RewardPool(rank) {
			pool[item] = true
		}
		items := ComputeRewardItems(rank, &seqRoller{ints: []int{0, 1, 2, 3}})
		if len(items) != n {
			t.Fatalf("%s: %d items, want %d", rank, len(items), n)
		}
		for _, item := range items {
			if !pool[item] {
				t.Errorf("%s: %s not in pool", rank, item)
			}
		}
	}
}

func TestComputeRewardItemsWithReplacement(t *testing.T) {
	items := ComputeRewardItems(RankS, &seqRoller{ints: []int{1, 1, 1}})
	for _, item := range items {
		if item != "NEURAL_LINK" {
			t.Fatalf("items = %v", items)
		}
	}
}

func TestSanitizeInventory(t *testing.T) {
	var client any
	if err := json.Unmarshal([]byte(`{"RESTORE_CHIP":500,"HACKED_ITEM":3,"SHIELD_CELL":"lots","EMP_GRENADE":2.9,"DATA_SHARD":-4}`), &client); err != nil {
		t.Fatal(err)
	}
	got := SanitizeInventory(client, models.Inventory{})
	want := models.Inventory{"RESTORE_CHIP": 99, "SHIELD_CELL": 0, "EMP_GRENADE": 2, "DATA_SHARD": 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
	if _, ok := got["HACKED_ITEM"]; ok {
		t.Error("unknown key survived")
	}
}

func TestSanitizeInventoryKeepsServerOnBadInput(t *testing.T) {
	server := models.Inventory{"X": 1}
	for _, client := range []any{nil, "inventory", []any{1, 2}, 12.0} {
		got := SanitizeInventory(client, server)
		if len(got) != 1 || got["X"] != 1 {
			t.Errorf("client %v: got %v", client, got)
		}
	}
}

func TestGrantItemsClamps(t *testing.T) {
	got := GrantItems(models.Inventory{"RESTORE_CHIP": 99, "DATA_SHARD": 1}, []string{"RESTORE_CHIP", "DATA_SHARD", "DATA_SHARD", "BOGUS"})
	if got["RESTORE_CHIP"] != 99 || got["DATA_SHARD"] != 3 {
		t.Fatalf("got %v", got)
	}
	if _, ok := got["BOGUS"]; ok {
		t.Fatal("non-whitelisted item granted")
	}
}

func TestMergeMissionRecord(t *testing.T) {
	t0 := time.Unix(100, 0)
	t1 := time.Unix(200, 0)
	t2 := time.Unix(300, 0)

	recs := MergeMissionRecord(nil, "maxis", RankB, 50, 1, t0)
	recs = MergeMissionRecord(recs, "maxis", RankA, 60, 2, t1)
	if len(recs) != 1 {
		t.Fatalf("len = %d", len(recs))
	}
	if recs[0].Rank != "A" || recs[0].XP != 110 || !recs[0].ClearedAt.Equal(t1) || recs[0].Level != 2 {
		t.Fatalf("after upgrade: %+v", recs[0])
	}

	recs = MergeMissionRecord(recs, "maxis", RankB, 50, 3, t2)
	if recs[0].Rank != "A" || recs[0].XP != 160 || !recs[0].ClearedAt.Equal(t1) || recs[0].Level != 2 {
		t.Fatalf("a worse clear must only add xp: %+v", recs[0])
	}

	recs = MergeMissionRecord(recs, "cipher-queen", RankS, 75, 3, t2)
	if len(recs) != 2 || recs[1].ID != "cipher-queen" {
		t.Fatalf("second mission not appended: %+v", recs)
	}
}

func TestMergeClientMissionsNeverDeletes(t *testing.T) {
	registry := NewStreamerRegistry([]string{"maxis", "cipher-queen"})
	server := models.MissionRecords{{ID: "maxis", Rank: "A", XP: 100, Level: 2, ClearedAt: time.Unix(10, 0)}}
	client := models.MissionRecords{
		{ID: "maxis", Rank: "F", XP: 5},
		{ID: "Cipher Queen", Rank: "S", XP: 75, Level: 900},
		{ID: "unknown-streamer", Rank: "S", XP: 75},
		{ID: "cipher-queen", Rank: "Z", XP: 75},
	}
	got := MergeClientMissions(server, client, registry.Resolve)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Rank != "A" || got[0].XP != 100 {
		t.Fatalf("server entry downgraded: %+v", got[0])
	}
	if got[1].ID != "cipher-queen" || got[1].Rank != "S" || got[1].Level != LevelCap {
		t.Fatalf("client entry not canonicalised: %+v", got[1])
	}

	if empty := MergeClientMissions(server, nil, registry.Resolve); len(empty) != 1 {
		t.Fatalf("empty client list removed history: %+v", empty)
	}
}

func TestStreamerRegistryResolve(t *testing.T) {
	r := NewStreamerRegistry([]string{"Maxis", "cipher-queen"})
	if id, ok := r.Resolve("  MAXIS "); !ok || id != "maxis" {
		t.Fatalf("Resolve = %q %v", id, ok)
	}
	if _, ok := r.Resolve("nobody"); ok {
		t.Fatal("unknown streamer resolved")
	}
	if _, ok := r.Resolve(""); ok {
		t.Fatal("empty id resolved")
	}
}

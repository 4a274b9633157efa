package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"resistance-server/models"
)

func TestTransitionOnlyAppliesOnce(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	m := mem.PutMatch(models.PvpMatch{
		AttackerID: "a", DefenderID: "d",
		AttackerHP: 100, DefenderHP: 100,
		Status:     models.MatchActive,
		LastUpdate: time.Unix(1000, 0),
	})

	finished := models.MatchFinished
	winner := "a"
	guard := MatchGuard{Status: models.MatchActive, Participant: "a"}
	change := MatchChange{Status: &finished, WinnerID: &winner, LastUpdate: time.Unix(2000, 0)}

	ok, err := mem.Transition(ctx, m.ID, guard, change)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	other := "d"
	change.WinnerID = &other
	ok, err = mem.Transition(ctx, m.ID, MatchGuard{Status: models.MatchActive, Participant: "d"}, change)
	if err != nil || ok {
		t.Fatalf("second transition should not apply: ok=%v err=%v", ok, err)
	}

	got, _ := mem.GetMatch(ctx, m.ID)
	if got.WinnerID == nil || *got.WinnerID != "a" {
		t.Fatalf("winner = %v, want a", got.WinnerID)
	}
}

func TestTransitionRejectsNonParticipant(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	m := mem.PutMatch(models.PvpMatch{AttackerID: "a", DefenderID: "d", Status: models.MatchActive})
	finished := models.MatchFinished
	ok, _ := mem.Transition(ctx, m.ID, MatchGuard{Status: models.MatchActive, Participant: "x"}, MatchChange{Status: &finished})
	if ok {
		t.Fatal("non-participant transition applied")
	}
}

func TestTransitionLastUpdateGuard(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	last := time.Unix(1000, 0)
	m := mem.PutMatch(models.PvpMatch{AttackerID: "a", DefenderID: "d", Status: models.MatchActive, LastUpdate: last})

	early := last.Add(-time.Second)
	ok, _ := mem.Transition(ctx, m.ID, MatchGuard{Status: models.MatchActive, LastUpdateAtOrBefore: &early}, MatchChange{LastUpdate: last})
	if ok {
		t.Fatal("transition applied although last_update is newer than the bound")
	}
	ok, _ = mem.Transition(ctx, m.ID, MatchGuard{Status: models.MatchActive, LastUpdateAtOrBefore: &last}, MatchChange{LastUpdate: last.Add(time.Second)})
	if !ok {
		t.Fatal("transition at the bound should apply")
	}
}

func TestCreateMatchStakesBothWagers(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	a := mem.PutPlayer(models.Player{Wallet: "wa", PtsBalance: 100})
	d := mem.PutPlayer(models.Player{Wallet: "wd", PtsBalance: 30})

	err := mem.CreateMatch(ctx, &models.PvpMatch{AttackerID: a.ID, DefenderID: d.ID, WagerAmount: 50, Status: models.MatchActive})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	pa, _ := mem.GetPlayer(ctx, a.ID)
	if pa.PtsBalance != 100 {
		t.Fatalf("attacker balance changed on failed stake: %d", pa.PtsBalance)
	}

	if err := mem.CreateMatch(ctx, &models.PvpMatch{AttackerID: a.ID, DefenderID: d.ID, WagerAmount: 30, Status: models.MatchActive}); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	pa, _ = mem.GetPlayer(ctx, a.ID)
	pd, _ := mem.GetPlayer(ctx, d.ID)
	if pa.PtsBalance != 70 || pd.PtsBalance != 0 {
		t.Fatalf("balances = %d/%d, want 70/0", pa.PtsBalance, pd.PtsBalance)
	}
}

func TestAdjustPtsBalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	p := mem.PutPlayer(models.Player{Wallet: "w", PtsBalance: 10})
	if _, err := mem.AdjustPtsBalance(ctx, p.ID, -11); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v", err)
	}
	bal, err := mem.AdjustPtsBalance(ctx, p.ID, -10)
	if err != nil || bal != 0 {
		t.Fatalf("bal=%d err=%v", bal, err)
	}
	if _, err := mem.AdjustPtsBalance(ctx, "missing", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateProgressGuardsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	stamp := time.Unix(500, 0)
	p := mem.PutPlayer(models.Player{Wallet: "w", UpdatedAt: stamp})

	ok, err := mem.UpdateProgress(ctx, p.ID, stamp.Add(time.Second), ProgressUpdate{XP: 10, Level: 1, UpdatedAt: stamp.Add(2 * time.Second)})
	if err != nil || ok {
		t.Fatalf("stale update applied: ok=%v err=%v", ok, err)
	}
	ok, err = mem.UpdateProgress(ctx, p.ID, stamp, ProgressUpdate{XP: 10, Level: 1, PtsDelta: 5, Faction: models.FactionRed, UpdatedAt: stamp.Add(2 * time.Second)})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	got, _ := mem.GetPlayer(ctx, p.ID)
	if got.XP != 10 || got.PtsBalance != 5 || got.Faction != models.FactionRed {
		t.Fatalf("unexpected player %+v", got)
	}
}

func TestMintAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	if ok, _ := mem.CompleteAttempt(ctx, "k"); ok {
		t.Fatal("completed an unknown key")
	}
	if _, created, err := mem.CreateAttempt(ctx, "k", "u1"); err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}
	if _, created, err := mem.CreateAttempt(ctx, "k", "u1"); err != nil || created {
		t.Fatalf("repeat create: created=%v err=%v", created, err)
	}
	if _, _, err := mem.CreateAttempt(ctx, "k", "u2"); !errors.Is(err, ErrConflict) {
		t.Fatalf("foreign key reuse: err=%v", err)
	}
	if ok, _ := mem.CompleteAttempt(ctx, "k"); !ok {
		t.Fatal("BUILT attempt not completed")
	}
	if ok, _ := mem.CompleteAttempt(ctx, "k"); ok {
		t.Fatal("COMPLETED attempt completed twice")
	}
}

func TestStandingsOrder(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_ = mem.Contribute(ctx, "maxis", models.FactionRed, 1)
	_ = mem.Contribute(ctx, "maxis", models.FactionPurple, 2)
	_ = mem.Contribute(ctx, "maxis", models.FactionRed, 2)
	got, _ := mem.Standings(ctx, "maxis")
	if len(got) != 2 || got[0].Faction != models.FactionRed || got[0].Score != 3 {
		t.Fatalf("standings = %+v", got)
	}
}

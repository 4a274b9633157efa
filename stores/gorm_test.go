package stores

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"resistance-server/models"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
	return db, mock
}

// jsonDoc matches a jsonb argument that reached the driver already encoded.
type jsonDoc struct{ open byte }

func (d jsonDoc) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	return ok && len(b) > 0 && b[0] == d.open && json.Valid(b)
}

func TestGormTransitionReportsRowsAffected(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormMatchStore{DB: db}
	ctx := context.Background()

	cutoff := time.Unix(1000, 0)
	opponent := "d"
	finished := models.MatchFinished
	winner := "a"
	guard := MatchGuard{Status: models.MatchActive, Participant: "a", TurnPlayerID: &opponent, LastUpdateAtOrBefore: &cutoff}
	change := MatchChange{Status: &finished, WinnerID: &winner, LastUpdate: time.Unix(1025, 0)}

	const update = `UPDATE "pvp_matches" SET "last_update"=\$1,"status"=\$2,"winner_id"=\$3 WHERE \(id = \$4 AND status = \$5\) AND \(+attacker_id = \$6 OR defender_id = \$7\)+ AND turn_player_id = \$8 AND last_update <= \$9`
	mock.ExpectExec(update).
		WithArgs(change.LastUpdate, finished, winner, "m-1", models.MatchActive, "a", "a", opponent, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.Transition(ctx, "m-1", guard, change)
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = store.Transition(ctx, "m-1", guard, change)
	if err != nil || ok {
		t.Fatalf("lost transition: ok=%v err=%v", ok, err)
	}
}

func TestGormTransitionUnsetTurnPredicate(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormMatchStore{DB: db}

	turn := 3
	holder := "a"
	mock.ExpectExec(`UPDATE "pvp_matches" SET .* WHERE .*turn_number = \$\d+ AND turn_player_id IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Transition(context.Background(), "m-1",
		MatchGuard{Status: models.MatchActive, TurnNumber: &turn, TurnPlayerUnset: true},
		MatchChange{TurnPlayerID: &holder, LastUpdate: time.Unix(2000, 0)},
	)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestGormTransitionPropagatesErrors(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormMatchStore{DB: db}

	boom := errors.New("connection reset")
	mock.ExpectExec(`UPDATE "pvp_matches"`).WillReturnError(boom)

	ok, err := store.Transition(context.Background(), "m-1", MatchGuard{Status: models.MatchActive}, MatchChange{LastUpdate: time.Unix(1, 0)})
	if !errors.Is(err, boom) || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestGormUpdateProgressGuardsOnUpdatedAt(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormPlayerStore{DB: db}
	ctx := context.Background()

	expect := time.Unix(5000, 0)
	u := ProgressUpdate{
		XP:        120,
		Level:     2,
		Inventory: models.Inventory{"med_kit": 2},
		Faction:   models.FactionRed,
		PtsDelta:  10,
		UpdatedAt: time.Unix(5060, 0),
	}

	// map updates skip field serializers, so the jsonb columns must arrive
	// as encoded documents from the types themselves
	const update = `UPDATE "users" SET "completed_missions"=\$1,"faction"=\$2,"inventory"=\$3,"level"=\$4,"losses"=losses \+ \$5,"pts_balance"=pts_balance \+ \$6,"updated_at"=\$7,"wins"=wins \+ \$8,"xp"=\$9 WHERE id = \$10 AND updated_at = \$11`
	mock.ExpectExec(update).
		WithArgs(jsonDoc{'['}, models.FactionRed, jsonDoc{'{'}, 2, int64(0), int64(10), u.UpdatedAt, int64(0), int64(120), "p-1", expect).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.UpdateProgress(ctx, "p-1", expect, u)
	if err != nil || !ok {
		t.Fatalf("fresh write: ok=%v err=%v", ok, err)
	}
	ok, err = store.UpdateProgress(ctx, "p-1", expect, u)
	if err != nil || ok {
		t.Fatalf("stale write: ok=%v err=%v", ok, err)
	}
}

func TestGormAdjustPtsBalanceInsufficientFunds(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormPlayerStore{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "users" SET "pts_balance"=pts_balance \+ \$1 WHERE id = \$2 AND pts_balance \+ \$3 >= 0`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "users" WHERE id = \$1`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	if _, err := store.AdjustPtsBalance(context.Background(), "p-1", -50); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v", err)
	}
}

func TestGormGetMatch(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormMatchStore{DB: db}
	ctx := context.Background()

	const sel = `SELECT \* FROM "pvp_matches" WHERE id = \$1`
	mock.ExpectQuery(sel).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := store.GetMatch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing match err = %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "attacker_id", "defender_id", "attacker_hp", "defender_hp", "attacker_stats", "defender_stats", "turn_player_id", "turn_number", "status", "wager_amount", "last_update"}).
		AddRow("m-1", "a", "d", 80, 100, []byte(`{"maxHp":120,"attack":30,"defense":20,"speed":9,"element":"SIGNAL"}`), `{"maxHp":100}`, nil, 4, "ACTIVE", 40, time.Unix(3000, 0))
	mock.ExpectQuery(sel).WithArgs("m-1", 1).WillReturnRows(rows)

	m, err := store.GetMatch(ctx, "m-1")
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if m.AttackerStats.MaxHP != 120 || m.AttackerStats.Element != "SIGNAL" || m.DefenderStats.MaxHP != 100 {
		t.Fatalf("stats = %+v / %+v", m.AttackerStats, m.DefenderStats)
	}
	if m.TurnPlayerID != nil || m.TurnHolder() != "a" || m.Status != models.MatchActive {
		t.Fatalf("match = %+v", m)
	}
}

func TestGormCompleteAttemptOnlyFromBuilt(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormMintStore{DB: db}
	ctx := context.Background()

	const update = `UPDATE "mint_attempts" SET "status"=\$1,"updated_at"=\$2 WHERE idempotency_key = \$3 AND status = \$4`
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))

	if ok, err := store.CompleteAttempt(ctx, "k-1"); err != nil || !ok {
		t.Fatalf("first confirm: ok=%v err=%v", ok, err)
	}
	if ok, err := store.CompleteAttempt(ctx, "k-1"); err != nil || ok {
		t.Fatalf("second confirm: ok=%v err=%v", ok, err)
	}
}

func TestGormMarkArchivedOnce(t *testing.T) {
	db, mock := newMockDB(t)
	store := &GormMatchStore{DB: db}

	at := time.Unix(9000, 0)
	mock.ExpectExec(`UPDATE "pvp_matches" SET "archived_at"=\$1 WHERE id = \$2 AND status = \$3 AND archived_at IS NULL`).
		WithArgs(at, "m-1", models.MatchFinished).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if ok, err := store.MarkArchived(context.Background(), "m-1", at); err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

package progress_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/pai-journeys/internal/course"
	"github.com/p-n-ai/pai-journeys/internal/progress"
)

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingKV) Set(context.Context, string, string) error         { return f.err }
func (f failingKV) Delete(context.Context, string) error              { return f.err }

func TestStore_Load_Missing(t *testing.T) {
	store := progress.NewStore(progress.NewMemoryKV(), "user-1")

	rec, err := store.Load(context.Background(), "private-equity")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rec.CompletedLevelIDs) != 0 || rec.CourseCompleted || len(rec.Levels) != 0 {
		t.Errorf("Load() = %+v, want zero record", rec)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := progress.NewStore(progress.NewMemoryKV(), "user-1")

	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	d := rec.Detail(2)
	d.Master("terms", "lbo")
	d.SetTier("games", "pitch", course.TierSilver)
	d.Points = 35

	if err := store.Save(ctx, "private-equity", rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "private-equity")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.IsLevelCompleted(1) {
		t.Error("level 1 should be completed")
	}
	gd := got.Levels[2]
	if gd == nil {
		t.Fatal("level 2 detail missing")
	}
	if len(gd.Mastered("terms")) != 1 {
		t.Errorf("Mastered(terms) = %v, want [lbo]", gd.Mastered("terms"))
	}
	if gd.Tiers("games")["pitch"] != course.TierSilver {
		t.Errorf("tier = %q, want silver", gd.Tiers("games")["pitch"])
	}
	if got.Points() != 35 {
		t.Errorf("Points() = %d, want 35", got.Points())
	}
}

func TestStore_Load_Malformed(t *testing.T) {
	ctx := context.Background()
	kv := progress.NewMemoryKV()
	store := progress.NewStore(kv, "")

	_ = kv.Set(ctx, store.Key("wealth"), "{not json")

	rec, err := store.Load(ctx, "wealth")
	if err != nil {
		t.Fatalf("Load() error = %v; malformed data must not surface", err)
	}
	if len(rec.CompletedLevelIDs) != 0 {
		t.Errorf("CompletedLevelIDs = %v, want empty", rec.CompletedLevelIDs)
	}
}

func TestStore_Load_NormalizesCompletedSet(t *testing.T) {
	ctx := context.Background()
	kv := progress.NewMemoryKV()
	store := progress.NewStore(kv, "")

	_ = kv.Set(ctx, store.Key("wealth"), `{"completed_level_ids":[3,1,3]}`)

	rec, err := store.Load(ctx, "wealth")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(rec.CompletedLevelIDs) != 2 || rec.CompletedLevelIDs[0] != 1 || rec.CompletedLevelIDs[1] != 3 {
		t.Errorf("CompletedLevelIDs = %v, want [1 3]", rec.CompletedLevelIDs)
	}
	if rec.Levels == nil {
		t.Error("Levels should be non-nil")
	}
}

func TestStore_Key(t *testing.T) {
	tests := []struct {
		user string
		want string
	}{
		{"", "hedge-funds-progress"},
		{"42", "42:hedge-funds-progress"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := progress.NewStore(progress.NewMemoryKV(), tt.user).Key("hedge-funds"); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStore_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := progress.NewMemoryKV()
	alice := progress.NewStore(kv, "alice")
	bob := progress.NewStore(kv, "bob")

	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	_ = alice.Save(ctx, "pe", rec)

	got, _ := bob.Load(ctx, "pe")
	if got.IsLevelCompleted(1) {
		t.Error("bob should not see alice's progress")
	}
}

func TestStore_ResetLevel(t *testing.T) {
	ctx := context.Background()
	store := progress.NewStore(progress.NewMemoryKV(), "u")

	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	rec.MarkLevelCompleted(2)
	rec.CourseCompleted = true
	rec.Detail(1).Points = 10
	rec.Detail(2).Points = 20
	_ = store.Save(ctx, "pe", rec)

	if err := store.ResetLevel(ctx, "pe", 2); err != nil {
		t.Fatalf("ResetLevel() error = %v", err)
	}

	got, _ := store.Load(ctx, "pe")
	if got.IsLevelCompleted(2) {
		t.Error("level 2 should no longer be completed")
	}
	if got.CourseCompleted {
		t.Error("CourseCompleted should be false after resetting a completed level")
	}
	if _, ok := got.Levels[2]; ok {
		t.Error("level 2 detail should be cleared")
	}
	if !got.IsLevelCompleted(1) || got.Levels[1].Points != 10 {
		t.Error("level 1 should be untouched")
	}
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := progress.NewStore(progress.NewMemoryKV(), "u")

	rec := progress.NewRecord()
	rec.MarkLevelCompleted(1)
	_ = store.Save(ctx, "pe", rec)

	if err := store.Reset(ctx, "pe"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	got, _ := store.Load(ctx, "pe")
	if len(got.CompletedLevelIDs) != 0 {
		t.Errorf("CompletedLevelIDs = %v, want empty", got.CompletedLevelIDs)
	}
}

func TestStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	store := progress.NewStore(failingKV{err: boom}, "u")

	if _, err := store.Load(ctx, "pe"); !errors.Is(err, boom) {
		t.Errorf("Load() error = %v, want wrapped backend error", err)
	}
	if err := store.Save(ctx, "pe", progress.NewRecord()); !errors.Is(err, boom) {
		t.Errorf("Save() error = %v, want wrapped backend error", err)
	}
	if err := store.Reset(ctx, "pe"); !errors.Is(err, boom) {
		t.Errorf("Reset() error = %v, want wrapped backend error", err)
	}
}

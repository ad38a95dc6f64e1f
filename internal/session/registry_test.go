package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"stave/internal/blockspec"
	"stave/internal/services"
	"stave/internal/session"
)

func openRegistry(t *testing.T) *session.Registry {
	t.Helper()
	reg, err := session.Open(filepath.Join(t.TempDir(), "state", "sessions.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestCreateAndGet(t *testing.T) {
	reg := openRegistry(t)
	ctx := context.Background()

	created, err := reg.Create(ctx, session.Inputs{
		SourcePath:   "scores/a.mei",
		Options:      blockspec.Options{"scale": float64(50), "adjustPageHeight": true, "font": "Leland"},
		MeasureRange: "1-4",
		Mount:        "note.md#0",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" || created.Page != 1 {
		t.Fatalf("unexpected session %#v", created)
	}

	got, err := reg.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected session")
	}
	want := blockspec.Options{"scale": float64(50), "adjustPageHeight": true, "font": "Leland"}
	if !reflect.DeepEqual(got.Options, want) {
		t.Fatalf("options round trip = %#v", got.Options)
	}
	if got.MeasureRange != "1-4" || got.Mount != "note.md#0" || got.SourcePath != "scores/a.mei" {
		t.Fatalf("unexpected session %#v", got)
	}
}

func TestCreateAssignsDistinctOrderedIDs(t *testing.T) {
	reg := openRegistry(t)
	ctx := context.Background()

	seen := map[string]bool{}
	var last string
	for i := 0; i < 20; i++ {
		s, err := reg.Create(ctx, session.Inputs{SourcePath: "a.mei"})
		if err != nil {
			t.Fatal(err)
		}
		if seen[s.ID] {
			t.Fatalf("duplicate id %s", s.ID)
		}
		seen[s.ID] = true
		if last != "" && s.ID < last {
			t.Fatalf("ids not time ordered: %s after %s", s.ID, last)
		}
		last = s.ID
	}
}

func TestCreateRequiresPath(t *testing.T) {
	reg := openRegistry(t)
	if _, err := reg.Create(context.Background(), session.Inputs{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	reg := openRegistry(t)
	s, err := reg.Get(context.Background(), "missing")
	if err != nil || s != nil {
		t.Fatalf("Get = %#v, %v", s, err)
	}
}

func TestUpdatePatchesSelectedFields(t *testing.T) {
	reg := openRegistry(t)
	ctx := context.Background()
	s, err := reg.Create(ctx, session.Inputs{SourcePath: "a.mei", Options: blockspec.Options{"scale": float64(40)}, MeasureRange: "2-3"})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := reg.Update(ctx, s.ID, session.Patch{Page: session.IntPtr(3)})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Page != 3 || updated.Options["scale"] != float64(40) || updated.MeasureRange != "2-3" {
		t.Fatalf("unexpected update %#v", updated)
	}

	updated, err = reg.Update(ctx, s.ID, session.Patch{MeasureRange: session.StringPtr("")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.MeasureRange != "" {
		t.Fatalf("expected cleared measure range, got %q", updated.MeasureRange)
	}

	if _, err := reg.Update(ctx, s.ID, session.Patch{Page: session.IntPtr(0)}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for page 0, got %v", err)
	}
	if _, err := reg.Update(ctx, "missing", session.Patch{Page: session.IntPtr(2)}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEvictAndEvictMount(t *testing.T) {
	reg := openRegistry(t)
	ctx := context.Background()

	a, _ := reg.Create(ctx, session.Inputs{SourcePath: "a.mei", Mount: "note#0"})
	b, _ := reg.Create(ctx, session.Inputs{SourcePath: "b.mei", Mount: "note#1"})

	if err := reg.Evict(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := reg.Get(ctx, a.ID); got != nil {
		t.Fatal("expected evicted session to be gone")
	}
	if err := reg.Evict(ctx, a.ID); err != nil {
		t.Fatalf("evicting twice should be harmless: %v", err)
	}

	ids, err := reg.EvictMount(ctx, "note#1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("unexpected evicted ids %v", ids)
	}
	if n, _ := reg.Count(ctx); n != 0 {
		t.Fatalf("expected empty registry, got %d", n)
	}
}

func TestPruneRemovesStaleSessions(t *testing.T) {
	reg := openRegistry(t)
	ctx := context.Background()

	if _, err := reg.Create(ctx, session.Inputs{SourcePath: "a.mei"}); err != nil {
		t.Fatal(err)
	}
	if n, err := reg.Prune(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("fresh sessions must survive: %d, %v", n, err)
	}
	time.Sleep(5 * time.Millisecond)
	n, err := reg.Prune(ctx, time.Millisecond)
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	if n, _ := reg.Prune(ctx, 0); n != 0 {
		t.Fatal("zero retention must not prune")
	}
}

func TestReopenKeepsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	reg, err := session.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := reg.Create(context.Background(), session.Inputs{SourcePath: "a.mei"})
	if err != nil {
		t.Fatal(err)
	}
	_ = reg.Close()

	reg, err = session.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reg.Close()
	list, err := reg.List(context.Background())
	if err != nil || len(list) != 1 || list[0].ID != s.ID {
		t.Fatalf("List = %v, %v", list, err)
	}
}

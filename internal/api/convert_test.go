package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"stave/internal/blockspec"
	"stave/internal/deps"
	"stave/internal/notifications"
	"stave/internal/playback"
	"stave/internal/render"
	"stave/internal/services"
	"stave/internal/session"
	"stave/internal/view"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", services.Wrap(services.ErrValidation, "api", "render", "mount required", nil), http.StatusBadRequest},
		{"not found", services.Wrap(services.ErrNotFound, "render", "page", "unknown session", nil), http.StatusNotFound},
		{"fetch", services.Wrap(services.ErrFetch, "fetch", "url", "status 404", nil), http.StatusBadGateway},
		{"selection", services.Wrap(services.ErrSelection, "engine", "select", "rejected", nil), http.StatusUnprocessableEntity},
		{"platform", services.ErrUnsupportedPlatform, http.StatusUnprocessableEntity},
		{"superseded", fmt.Errorf("render: %w", render.ErrSuperseded), http.StatusConflict},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"engine", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusCode(tc.err); got != tc.want {
				t.Fatalf("StatusCode = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestNewErrorCarriesKind(t *testing.T) {
	resp := NewError(services.Wrap(services.ErrFetch, "fetch", "vault", "missing", nil))
	if resp.Kind != "fetch" {
		t.Fatalf("kind = %q", resp.Kind)
	}
	if !strings.Contains(resp.Error, "missing") {
		t.Fatalf("error = %q", resp.Error)
	}
	if NewError(nil) != (ErrorResponse{}) {
		t.Fatal("expected empty payload for nil error")
	}
}

func TestFromSessionJoinsContainer(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := &session.Session{
		ID:         "s1",
		SourcePath: "scores/a.mei",
		Options:    blockspec.Options{"scale": 40.0},
		Page:       1,
		Mount:      "note.md#0",
		CreatedAt:  created,
		UpdatedAt:  created,
	}

	detached := FromSession(sess, nil, false)
	if detached.Mounted || detached.Pages != 0 {
		t.Fatalf("unexpected container fields: %+v", detached)
	}
	if detached.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("createdAt = %q", detached.CreatedAt)
	}
	if detached.Options["scale"] != 40.0 {
		t.Fatalf("options = %v", detached.Options)
	}

	mounted := FromSession(sess, &view.Container{SessionID: "s1", Page: 2, Pages: 3}, true)
	if !mounted.Mounted || mounted.Page != 2 || mounted.Pages != 3 || !mounted.Playing {
		t.Fatalf("unexpected mounted session: %+v", mounted)
	}

	other := FromSession(sess, &view.Container{SessionID: "s2", Pages: 9}, false)
	if other.Mounted {
		t.Fatal("container of another session must not be joined")
	}
}

func TestFromMountPointSVGIsOptional(t *testing.T) {
	mp := view.MountPoint{
		Name:      "note.md#0",
		Container: &view.Container{SessionID: "s1", SVG: `<svg><g id="n1" class="note"></g></svg>`, Page: 1, Pages: 1},
		Playing:   []string{"n1"},
	}
	brief := FromMountPoint(mp, false)
	if brief.SVG != "" || brief.SessionID != "s1" {
		t.Fatalf("unexpected brief payload: %+v", brief)
	}
	full := FromMountPoint(mp, true)
	if !strings.Contains(full.SVG, view.PlayingClass) {
		t.Fatalf("expected highlighted svg, got %q", full.SVG)
	}
}

func TestFromBlockResults(t *testing.T) {
	resp := FromBlockResults("note.md", []render.BlockResult{
		{Mount: "note.md#0", Line: 3, SessionID: "s1"},
		{Mount: "note.md#1", Line: 9, Error: "Error rendering data: missing"},
	})
	if resp.Note != "note.md" || len(resp.Blocks) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Blocks[1].Error == "" || resp.Blocks[1].SessionID != "" {
		t.Fatalf("unexpected failed block: %+v", resp.Blocks[1])
	}
}

func TestFromPlaybackAndNotices(t *testing.T) {
	status := FromPlayback(playback.Status{State: playback.StatePlaying, SessionID: "s1", Position: 125})
	if status.State != "playing" || status.PositionMS != 125 || status.StartedAt != "" {
		t.Fatalf("unexpected playback status: %+v", status)
	}

	notices := FromNotices([]notifications.Notice{{ID: "n2", Kind: "fetch", Message: "b"}, {ID: "n1", Message: "a"}})
	if len(notices) != 2 || notices[0].ID != "n2" {
		t.Fatalf("order not kept: %+v", notices)
	}

	statuses := FromDependencies([]deps.Status{
		{Name: "Verovio", Command: "verovio", Available: true},
		{Name: "Opener", Command: "xdg-open", Optional: true},
	})
	if len(statuses) != 2 || !statuses[0].Available || statuses[0].Severity != "ok" || statuses[1].Severity != "warn" {
		t.Fatalf("unexpected dependencies: %+v", statuses)
	}
}

package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stave/internal/config"
	"stave/internal/fetch"
	"stave/internal/services"
	"stave/internal/vault"
)

func TestIsURL(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/a.mei": true,
		"http://localhost:8080/x":   true,
		"scores/a.mei":              false,
		"/scores/a.mei":             false,
		"C:/scores/a.mei":           false,
		"mailto:someone":            false,
		"":                          false,
	}
	for in, want := range cases {
		if got := fetch.IsURL(in); got != want {
			t.Fatalf("IsURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFetchURL(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<mei/>"))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Fetch.UserAgent = "stave-test"
	f := fetch.New(&cfg, nil)

	data, err := f.Fetch(context.Background(), srv.URL+"/a.mei")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(data) != "<mei/>" {
		t.Fatalf("unexpected body %q", data)
	}
	if gotUA != "stave-test" {
		t.Fatalf("unexpected user agent %q", gotUA)
	}
}

func TestFetchURLRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 17)))
	}))
	defer srv.Close()

	cfg := config.Default()
	f := fetch.New(&cfg, nil, fetch.WithMaxBodyBytes(16))
	if _, err := f.Fetch(context.Background(), srv.URL+"/big.mei"); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error for an oversized body, got %v", err)
	}

	exact := fetch.New(&cfg, nil, fetch.WithMaxBodyBytes(17))
	data, err := exact.Fetch(context.Background(), srv.URL+"/big.mei")
	if err != nil || len(data) != 17 {
		t.Fatalf("body at the limit: %d bytes, %v", len(data), err)
	}
}

func TestFetchURLNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := fetch.New(nil, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.mei")
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestFetchVault(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "x.mei"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := vault.New(root)
	if err != nil {
		t.Fatal(err)
	}
	f := fetch.New(nil, v)

	data, err := f.Fetch(context.Background(), "x.mei")
	if err != nil || string(data) != "data" {
		t.Fatalf("Fetch = %q, %v", data, err)
	}

	_, err = f.Fetch(context.Background(), "missing.mei")
	if !errors.Is(err, services.ErrFetch) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected fetch + not found markers, got %v", err)
	}
}

func TestFetchEmptyPath(t *testing.T) {
	f := fetch.New(nil, nil)
	if _, err := f.Fetch(context.Background(), "  "); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := fetch.New(nil, nil)
	if _, err := f.Fetch(ctx, srv.URL); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

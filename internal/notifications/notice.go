package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFeedSize is the number of notices a Feed retains.
const DefaultFeedSize = 64

// Notice is one transient, user-visible message.
type Notice struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
}

// Service delivers notices.
type Service interface {
	Notify(ctx context.Context, notice Notice) error
}

// Feed keeps the most recent notices in memory.
type Feed struct {
	mu      sync.Mutex
	entries []Notice
	next    int
	full    bool
	now     func() time.Time
}

// NewFeed returns a feed retaining up to size notices.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{
		entries: make([]Notice, size),
		now:     time.Now,
	}
}

// Notify stamps the notice and appends it, overwriting the oldest entry when
// the feed is full.
func (f *Feed) Notify(_ context.Context, notice Notice) error {
	notice = f.stamp(notice)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[f.next] = notice
	f.next = (f.next + 1) % len(f.entries)
	if f.next == 0 {
		f.full = true
	}
	return nil
}

// Recent returns up to limit notices, newest first. A limit <= 0 returns all
// retained notices.
func (f *Feed) Recent(limit int) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := f.next
	if f.full {
		count = len(f.entries)
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	out := make([]Notice, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.entries)) % len(f.entries)
		out = append(out, f.entries[idx])
	}
	return out
}

func (f *Feed) stamp(notice Notice) Notice {
	if notice.ID == "" {
		if id, err := uuid.NewV7(); err == nil {
			notice.ID = id.String()
		} else {
			notice.ID = uuid.NewString()
		}
	}
	if notice.Time.IsZero() {
		notice.Time = f.now().UTC()
	}
	if strings.TrimSpace(notice.Kind) == "" {
		notice.Kind = KindInfo
	}
	if notice.Title == "" {
		notice.Title = Title(notice.Kind)
	}
	return notice
}

type fanout []Service

// Notify delivers to every service and joins their failures.
func (m fanout) Notify(ctx context.Context, notice Notice) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine returns a service delivering to every non-nil service in order.
func Combine(services ...Service) Service {
	out := make(fanout, 0, len(services))
	for _, svc := range services {
		if svc != nil {
			out = append(out, svc)
		}
	}
	return out
}

package render

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"stave/internal/blockspec"
	"stave/internal/logging"
	"stave/internal/markdown"
	"stave/internal/services"
	"stave/internal/view"
)

// BlockResult is the outcome of rendering one block of a note.
type BlockResult struct {
	Mount     string `json:"mount"`
	Line      int    `json:"line"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MountName is the mount point for block index of note.
func MountName(note string, index int) string {
	return fmt.Sprintf("%s#%d", note, index)
}

// RenderDocument renders every score block of a Markdown note. Fetches run
// concurrently; engine work stays serial. Mount points left over from an
// earlier version of the note with more blocks are unmounted. Per-block
// failures are reported in the results, not as an error.
func (p *Pipeline) RenderDocument(ctx context.Context, note, text string) ([]BlockResult, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, services.Wrap(services.ErrValidation, "render", "document", "note name required", nil)
	}
	blocks := markdown.Blocks(text)

	type prepared struct {
		ticket view.Ticket
		spec   blockspec.Spec
		data   []byte
		err    error
	}
	work := make([]prepared, len(blocks))
	for i, block := range blocks {
		work[i].ticket = p.doc.Begin(MountName(note, block.Index))
		work[i].spec = blockspec.Parse(block.Source)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.prefetch)
	for i := range work {
		g.Go(func() error {
			// Fetch failures belong to their block; they do not cancel siblings.
			work[i].data, work[i].err = p.fetcher.Fetch(gctx, work[i].spec.Path)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]BlockResult, len(blocks))
	for i, block := range blocks {
		mount := work[i].ticket.Mount
		id, err := p.finish(services.WithMount(ctx, mount), work[i].ticket, work[i].spec, work[i].data, work[i].err)
		results[i] = BlockResult{Mount: mount, Line: block.Line, SessionID: id}
		if err != nil {
			results[i].Error = ErrorMessage(err)
		}
	}

	prefix := note + "#"
	for _, mp := range p.doc.Mounts() {
		if !strings.HasPrefix(mp.Name, prefix) {
			continue
		}
		var index int
		if _, err := fmt.Sscanf(strings.TrimPrefix(mp.Name, prefix), "%d", &index); err != nil || index < len(blocks) {
			continue
		}
		if err := p.Unmount(ctx, mp.Name); err != nil {
			logging.WarnWithContext(p.logger, "unmount failed", "unmount_failed",
				logging.String(logging.FieldMount, mp.Name),
				logging.Error(err),
			)
		}
	}

	p.logger.Info("note rendered",
		logging.String("note", note),
		logging.Int("blocks", len(blocks)),
	)
	return results, nil
}

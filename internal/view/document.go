package view

import (
	"sort"
	"sync"
	"time"
)

// PlayingClass marks a highlighted note element.
const PlayingClass = "playing"

// Ticket identifies one render attempt on a mount point.
type Ticket struct {
	Mount      string
	Generation uint64
}

// Container is a mounted score.
type Container struct {
	SessionID string `json:"session_id"`
	SVG       string `json:"svg"`
	Page      int    `json:"page"`
	Pages     int    `json:"pages"`
	Source    string `json:"source"`
	Desktop   bool   `json:"desktop"`
}

// MountPoint is the state of one mount point.
type MountPoint struct {
	Name       string     `json:"name"`
	Generation uint64     `json:"generation"`
	Revision   uint64     `json:"revision"`
	Container  *Container `json:"container,omitempty"`
	Error      string     `json:"error,omitempty"`
	Playing    []string   `json:"playing,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type mountState struct {
	generation uint64
	revision   uint64
	container  *Container
	errMsg     string
	playing    map[string]struct{}
	updated    time.Time
}

// Document is a set of mount points. It is safe for concurrent use.
type Document struct {
	mu        sync.Mutex
	seq       uint64
	mounts    map[string]*mountState
	bySession map[string]string
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		mounts:    make(map[string]*mountState),
		bySession: make(map[string]string),
	}
}

func (d *Document) state(mount string) *mountState {
	st, ok := d.mounts[mount]
	if !ok {
		st = &mountState{playing: map[string]struct{}{}}
		d.mounts[mount] = st
	}
	return st
}

func (st *mountState) touch() {
	st.revision++
	st.updated = time.Now().UTC()
}

// Begin starts a render on mount and returns its ticket. Any ticket issued
// earlier for the same mount point becomes stale. Generations are unique
// across the document so a ticket never matches a recreated mount point.
func (d *Document) Begin(mount string) Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state(mount)
	d.seq++
	st.generation = d.seq
	return Ticket{Mount: mount, Generation: st.generation}
}

// Current reports whether ticket is still the newest render on its mount.
func (d *Document) Current(ticket Ticket) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.mounts[ticket.Mount]
	return ok && st.generation == ticket.Generation
}

// Commit mounts c if ticket is current. It returns the session id of the
// container it replaced, if any, and whether the commit happened.
func (d *Document) Commit(ticket Ticket, c Container) (replaced string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, exists := d.mounts[ticket.Mount]
	if !exists || st.generation != ticket.Generation {
		return "", false
	}
	replaced = d.detachLocked(ticket.Mount, st)
	if replaced == c.SessionID {
		replaced = ""
	}
	cp := c
	st.container = &cp
	st.errMsg = ""
	d.bySession[c.SessionID] = ticket.Mount
	st.touch()
	return replaced, true
}

// Fail replaces the mount point's content with an error message if ticket
// is current. It returns the session id of the container it replaced.
func (d *Document) Fail(ticket Ticket, message string) (replaced string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, exists := d.mounts[ticket.Mount]
	if !exists || st.generation != ticket.Generation {
		return "", false
	}
	replaced = d.detachLocked(ticket.Mount, st)
	st.errMsg = message
	st.touch()
	return replaced, true
}

func (d *Document) detachLocked(mount string, st *mountState) string {
	if st.container == nil {
		return ""
	}
	id := st.container.SessionID
	if d.bySession[id] == mount {
		delete(d.bySession, id)
	}
	st.container = nil
	clear(st.playing)
	return id
}

// Unmount removes a mount point and returns the session it displayed.
func (d *Document) Unmount(mount string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.mounts[mount]
	if !ok {
		return ""
	}
	id := d.detachLocked(mount, st)
	delete(d.mounts, mount)
	return id
}

// Update changes the page shown by a session's container. Playing marks
// survive the swap; marks naming notes absent from svg stay dormant until
// their page is shown again or playback removes them.
func (d *Document) Update(sessionID string, page, pages int, svg string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.sessionStateLocked(sessionID)
	if st == nil {
		return false
	}
	st.container.Page = page
	st.container.Pages = pages
	st.container.SVG = svg
	st.touch()
	return true
}

// Mark adds and removes the playing class on a session's note elements. It
// returns false when the session is not mounted.
func (d *Document) Mark(sessionID string, add, remove []string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.sessionStateLocked(sessionID)
	if st == nil {
		return false
	}
	if len(add) == 0 && len(remove) == 0 {
		return true
	}
	for _, id := range remove {
		delete(st.playing, id)
	}
	for _, id := range add {
		st.playing[id] = struct{}{}
	}
	st.touch()
	return true
}

// ClearMarks removes every playing mark from a session's container.
func (d *Document) ClearMarks(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.sessionStateLocked(sessionID)
	if st == nil || len(st.playing) == 0 {
		return
	}
	clear(st.playing)
	st.touch()
}

// Marked returns the sorted ids currently marked playing for a session.
func (d *Document) Marked(sessionID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.sessionStateLocked(sessionID)
	if st == nil {
		return nil
	}
	return sortedKeys(st.playing)
}

// Container returns a copy of the container showing sessionID.
func (d *Document) Container(sessionID string) (Container, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.sessionStateLocked(sessionID)
	if st == nil {
		return Container{}, false
	}
	return *st.container, true
}

// MountOf returns the mount point showing sessionID.
func (d *Document) MountOf(sessionID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mount, ok := d.bySession[sessionID]
	return mount, ok
}

// Snapshot returns a copy of one mount point.
func (d *Document) Snapshot(mount string) (MountPoint, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.mounts[mount]
	if !ok {
		return MountPoint{}, false
	}
	return snapshotLocked(mount, st), true
}

// Mounts returns every mount point sorted by name.
func (d *Document) Mounts() []MountPoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MountPoint, 0, len(d.mounts))
	for name, st := range d.mounts {
		out = append(out, snapshotLocked(name, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Document) sessionStateLocked(sessionID string) *mountState {
	mount, ok := d.bySession[sessionID]
	if !ok {
		return nil
	}
	st, ok := d.mounts[mount]
	if !ok || st.container == nil || st.container.SessionID != sessionID {
		return nil
	}
	return st
}

func snapshotLocked(name string, st *mountState) MountPoint {
	mp := MountPoint{
		Name:       name,
		Generation: st.generation,
		Revision:   st.revision,
		Error:      st.errMsg,
		Playing:    sortedKeys(st.playing),
		UpdatedAt:  st.updated,
	}
	if st.container != nil {
		c := *st.container
		mp.Container = &c
	}
	return mp
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

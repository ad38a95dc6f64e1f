package playback

// MIDI status codes carried by player events.
const (
	MessageNoteOff = 128
	MessageNoteOn  = 144
)

// Event is one notification from the player clock. Message is
// MessageNoteOn or MessageNoteOff for note events; Time is the event's
// position in the track in milliseconds. End events mark the end of the
// track and carry no note.
type Event struct {
	Message  int
	Channel  int
	Note     int
	Velocity int
	Time     float64
	End      bool
}

// Player is the playback engine. Implementations deliver events from their
// own goroutine, never from inside Start or Subscribe, and Stop must not wait
// for a callback that is in progress.
type Player interface {
	// LoadFile loads a data URL (data:audio/midi;base64,...) and calls onReady
	// once the track can start.
	LoadFile(dataURL string, onReady func()) error
	Start() error
	Stop()
	// CurrentTime is the clock position in milliseconds.
	CurrentTime() float64
	// Subscribe registers fn for every event and returns a function that
	// removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

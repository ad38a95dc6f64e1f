// Package playback keeps one audio stream and the highlighted notes of its
// score in step.
//
// Synchronizer.Play re-activates the session's inputs on the shared engine,
// renders audio, stops whatever was playing (clearing its highlights), loads
// the audio into the Player, and subscribes to the player's note events. On
// note-on and note-off events, at most once per throttle interval, it asks
// the engine which notes sound at the player clock plus a small lookahead and
// applies the symmetric difference to the highlighted set.
//
// Only one session plays at a time. Stop, the end of the track, or another
// session starting all return the synchronizer to idle.
package playback

// Package engine owns the single shared engraving engine instance.
//
// The engine is stateful: it holds whichever score was loaded last. Adapter
// serializes every use of it. Callers never query the engine directly;
// Activate runs the load protocol for a session's inputs and hands the
// callback a Handle whose reads are guaranteed to observe that session's data.
// The Handle expires when the callback returns.
//
// Load protocol, in order:
//
//  1. set options
//  2. load the raw score data
//  3. select the measure range (when one is given)
//  4. regenerate layout data
//  5. reload the layout data
//
// Activating inputs that are already live skips the protocol.
package engine

// Package main hosts the stave CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon: rendering score blocks and whole notes, driving
// sessions through the toolbar actions, inspecting mount points and notices,
// and scaffolding configuration. Socket discovery and configuration loading
// live in commandContext so subcommands only deal with presentation.
//
// Add new behaviour to the internal packages first and surface it here.
package main

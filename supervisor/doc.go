// Package supervisor owns Claude work units end to end.
//
// A Supervisor turns a StartRequest into an Invocation, launches it on a
// Backend, relays every message the unit produces to a Sink, captures the
// session id the unit reports, and tears everything down on every exit path.
//
// Each Unit moves through
//
//	Launching -> Running -> {Completing, Aborting, Failed} -> Terminated
//
// and emits, in order: exactly one session-created event, any number of
// claude-response, error and token-budget events, and finally exactly one
// session-complete event. Nothing is emitted for a unit after
// session-complete.
//
// Two backends satisfy the Backend interface: CLIBackend runs a one-shot
// `claude --print` subprocess and decodes its newline-delimited output;
// QueryBackend drives a long-lived stream-json process through package
// query. The Supervisor is written once against the interface.
package supervisor

// Package claudebridge runs Claude CLI sessions on behalf of remote clients.
//
// A client sends a command over a websocket; the bridge launches one Claude
// process for it, relays every structured message the process prints and
// reports the session's lifecycle as JSON envelopes. Subpackages can be used
// on their own:
//
//   - supervisor: owns one work unit from launch to guaranteed teardown
//   - registry: at most one live unit per session id
//   - frame: newline-delimited JSON decoding over arbitrary chunks
//   - sandbox: scratch directories for inline attachments
//   - query: long-lived stream-json Claude process with interrupt support
//   - mcpconfig: MCP server discovery from ~/.claude.json
//   - channel: the websocket protocol
//   - config: YAML/TOML configuration with environment overrides
//
// # Quick Start
//
// Running a prompt and printing its events:
//
//	sup := supervisor.New()
//	sink := supervisor.SinkFunc(func(ev supervisor.Event) error {
//		fmt.Println(ev.Type, string(ev.Data))
//		return nil
//	})
//	u, _ := sup.Start(ctx, supervisor.StartRequest{Command: "list files"}, sink)
//	<-u.Done()
//
// Serving websocket clients:
//
//	h, _ := channel.NewHandler(sup)
//	http.Handle("/ws", h)
//
// The claudebridge command wires all of this together:
//
//	claudebridge serve --config bridge.yaml
package claudebridge

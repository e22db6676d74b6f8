// Package claudecontract is the single place where the strings shared with the
// Claude CLI live: flag names, stream-json event types, permission modes, the
// plan-mode tool set and on-disk file names.
//
// When the CLI changes its interface only this package should need edits.
//
//	args := []string{claudecontract.FlagPrint, prompt,
//	    claudecontract.FlagOutputFormat, claudecontract.FormatStreamJSON}
//
//	if msg.Type == claudecontract.EventTypeAssistant { ... }
package claudecontract

package claudecontract

// CLI flag names as accepted by the claude binary.
const (
	FlagPrint        = "--print"         // -p, non-interactive mode; takes the prompt
	FlagOutputFormat = "--output-format" // text, json, stream-json
	FlagInputFormat  = "--input-format"  // text, stream-json
	FlagVerbose      = "--verbose"       // required with stream-json output

	FlagModel = "--model"

	FlagSessionID = "--session-id"
	FlagResume    = "--resume" // -r, resume a prior session by id

	// The CLI accepts camelCase for the tool list flags.
	FlagAllowedTools    = "--allowedTools"
	FlagDisallowedTools = "--disallowedTools"

	FlagDangerouslySkipPermissions = "--dangerously-skip-permissions"
	FlagPermissionMode             = "--permission-mode"

	FlagMCPConfig = "--mcp-config"

	FlagReplayUserMessages = "--replay-user-messages"
)

// Output and input formats.
const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatStreamJSON = "stream-json"
)

// CLI is the default executable name looked up on PATH.
const CLI = "claude"

// InstallHint is shown to users when the CLI binary cannot be found.
const InstallHint = "Claude CLI not found. Install it with: npm install -g @anthropic-ai/claude-code"

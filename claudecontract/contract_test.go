package claudecontract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagNameFormat(t *testing.T) {
	flags := []string{
		FlagPrint,
		FlagOutputFormat,
		FlagInputFormat,
		FlagVerbose,
		FlagModel,
		FlagSessionID,
		FlagResume,
		FlagAllowedTools,
		FlagDisallowedTools,
		FlagDangerouslySkipPermissions,
		FlagPermissionMode,
		FlagMCPConfig,
		FlagReplayUserMessages,
	}

	seen := make(map[string]bool)
	for _, flag := range flags {
		assert.True(t, strings.HasPrefix(flag, "--"), "flag %q should start with --", flag)
		assert.False(t, seen[flag], "duplicate flag %q", flag)
		seen[flag] = true
	}
}

func TestPermissionMode_IsValid(t *testing.T) {
	for _, m := range ValidPermissionModes() {
		assert.True(t, m.IsValid(), m.String())
	}
	assert.False(t, PermissionMode("yolo").IsValid())
	assert.False(t, PermissionMode("").IsValid())
}

func TestPlanModeTools(t *testing.T) {
	tools := PlanModeTools()
	assert.Contains(t, tools, ToolRead)
	assert.Contains(t, tools, ToolExitPlanMode)
	assert.NotContains(t, tools, ToolBash)
	assert.NotContains(t, tools, ToolWrite)
}

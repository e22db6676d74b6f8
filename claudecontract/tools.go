package claudecontract

// Built-in tool names, as used in allowedTools/disallowedTools.
const (
	ToolRead         = "Read"
	ToolWrite        = "Write"
	ToolEdit         = "Edit"
	ToolBash         = "Bash"
	ToolTask         = "Task"
	ToolTodoRead     = "TodoRead"
	ToolTodoWrite    = "TodoWrite"
	ToolWebFetch     = "WebFetch"
	ToolWebSearch    = "WebSearch"
	ToolExitPlanMode = "exit_plan_mode"
)

// PlanModeTools returns the read-only tool set granted in plan mode.
func PlanModeTools() []string {
	return []string{
		ToolRead,
		ToolTask,
		ToolExitPlanMode,
		ToolTodoRead,
		ToolTodoWrite,
		ToolWebFetch,
		ToolWebSearch,
	}
}

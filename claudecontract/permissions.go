package claudecontract

// PermissionMode represents a permission mode for tool execution.
type PermissionMode string

const (
	PermissionDefault           PermissionMode = "default"
	PermissionAcceptEdits       PermissionMode = "acceptEdits"
	PermissionBypassPermissions PermissionMode = "bypassPermissions"
	// PermissionPlan is planning mode: no execution, read-only tools only.
	PermissionPlan PermissionMode = "plan"
)

// ValidPermissionModes returns all valid permission modes.
func ValidPermissionModes() []PermissionMode {
	return []PermissionMode{
		PermissionDefault,
		PermissionAcceptEdits,
		PermissionBypassPermissions,
		PermissionPlan,
	}
}

// IsValid returns true if the permission mode is valid.
func (m PermissionMode) IsValid() bool {
	switch m {
	case PermissionDefault, PermissionAcceptEdits, PermissionBypassPermissions, PermissionPlan:
		return true
	default:
		return false
	}
}

// String returns the string value of the permission mode.
func (m PermissionMode) String() string {
	return string(m)
}

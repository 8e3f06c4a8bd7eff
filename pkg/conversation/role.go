package conversation

// Role identifies who authored a message. The set is closed; validation and
// transition sites switch exhaustively over it.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole converts a stored role string back to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	}
	return "", newValidationError("invalid message role %q", s)
}

// Status tracks the lifecycle of an assistant message's generation. It is
// unset (StatusNone) for system and user messages and progresses monotonically
// pending -> generating -> finished | error.
type Status string

const (
	StatusNone       Status = ""
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusFinished   Status = "finished"
	StatusError      Status = "error"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusError:
		return true
	case StatusNone, StatusPending, StatusGenerating:
		return false
	}
	return false
}

package remote

import "fmt"

// ChangeKind says which part of the controller state changed.
type ChangeKind int

const (
	ChangeScan ChangeKind = iota
	ChangeRegistry
	ChangeSession
	ChangeMessage
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeScan:
		return "scan"
	case ChangeRegistry:
		return "registry"
	case ChangeSession:
		return "session"
	case ChangeMessage:
		return "message"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is published after controller state changes. Listeners re-read the
// state they render; a Change carries no payload of its own.
type Change struct {
	Kind ChangeKind
}

// notifier is how controllers publish changes. A nil notifier drops them.
type notifier func(Change)

func (n notifier) publish(kind ChangeKind) {
	if n != nil {
		n(Change{Kind: kind})
	}
}

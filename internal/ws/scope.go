package ws

// ScopeKind names the two channel namespaces.
type ScopeKind string

const (
	ScopeRoom    ScopeKind = "room"
	ScopeProject ScopeKind = "project"
)

// ChannelScope identifies one broadcast channel: a room or a project.
// The zero value is no scope.
type ChannelScope struct {
	kind ScopeKind
	id   string
}

func RoomScope(roomID string) ChannelScope {
	return ChannelScope{kind: ScopeRoom, id: roomID}
}

func ProjectScope(projectID string) ChannelScope {
	return ChannelScope{kind: ScopeProject, id: projectID}
}

func (s ChannelScope) Kind() ScopeKind { return s.kind }
func (s ChannelScope) ID() string      { return s.id }
func (s ChannelScope) IsZero() bool    { return s.id == "" }

// Key is the channel name, "room-<id>" or "project-<id>".
func (s ChannelScope) Key() string {
	return string(s.kind) + "-" + s.id
}

func (s ChannelScope) String() string { return s.Key() }

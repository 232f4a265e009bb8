package events

// NotificationPayload is a human-readable status line.
type NotificationPayload struct {
	Message string
}

// RoomPayload accompanies createdRoom, joinedRoom, leftRoom and kicked.
type RoomPayload struct {
	Room   string
	SelfID string
	Name   string
	Admin  bool
}

// ParticipantPayload accompanies newParticipant and participantRemoved.
type ParticipantPayload struct {
	ID   string
	Name string
}

type ErrorPayload struct {
	Err error
}

type ChatPayload struct {
	From       string
	SenderName string
	Message    string
	Local      bool
}

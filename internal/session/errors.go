package session

import "errors"

var (
	ErrAlreadyInRoom = errors.New("session: already in a room")
	ErrJoinPending   = errors.New("session: join already pending")
	ErrEmptyRoomID   = errors.New("session: room id required")
	ErrEmptyName     = errors.New("session: name required")
	ErrNotInRoom     = errors.New("session: not in a room")
	ErrNotAdmin      = errors.New("session: only the room admin can kick")
	ErrRelay         = errors.New("session: relay error")
)

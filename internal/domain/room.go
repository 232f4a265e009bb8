package domain

import "errors"

type RoomID string

var ErrEmptyRoomID = errors.New("room id empty")

// Room is the descriptive part of a room. Membership lives in core.RoomService.
type Room struct {
	ID RoomID `json:"id"`
}

func NewRoom(id RoomID) (*Room, error) {
	if id == "" {
		return nil, ErrEmptyRoomID
	}
	return &Room{ID: id}, nil
}

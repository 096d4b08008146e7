package models

import "errors"

// ErrRoomNotFound is returned by stores when no room has the requested id
var ErrRoomNotFound = errors.New("room not found")

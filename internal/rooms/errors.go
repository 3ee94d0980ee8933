package rooms

import "errors"

// Room errors.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidInput        = errors.New("invalid input")
	ErrStakeholderNotFound = errors.New("stakeholder not found")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrRoomResolved        = errors.New("room is resolved")
	ErrVersionConflict     = errors.New("room was modified concurrently")
)

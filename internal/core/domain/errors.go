package domain

import "errors"

var (
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrConnectionNotFound  = errors.New("connection not found")

	ErrStreamNotFound = errors.New("stream not found")
	ErrStreamNotLive  = errors.New("stream is not live")
	ErrAlreadyLive    = errors.New("stream is already live")
	ErrNotOwner       = errors.New("not the stream owner")

	ErrGuestNotFound     = errors.New("guest not found")
	ErrGuestElsewhere    = errors.New("guest already requested on another stream")
	ErrInvalidTransition = errors.New("invalid guest status transition")

	ErrNotAMember = errors.New("not a member of the stream")

	ErrTargetUnreachable = errors.New("target connection unreachable")

	ErrEmptyPayload     = errors.New("payload must not be empty")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotAuthenticated = errors.New("connection is not authenticated")
)

package domain

import "errors"

var (
	ErrBuildNotRegistered = errors.New("build not registered")
	ErrNoFreePorts        = errors.New("no ports available in framework range")
	ErrPortMismatch       = errors.New("observed port differs from reservation and is taken")
	ErrPortTaken          = errors.New("port is reserved by another project")
	ErrProjectNotFound    = errors.New("project not found")
	ErrSessionNotFound    = errors.New("session not found")
)

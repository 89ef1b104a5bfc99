package repository

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrSoldOut      = errors.New("no tickets available")
	ErrEventExpired = errors.New("event already passed")
)

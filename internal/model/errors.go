package model

import "errors"

var (
	ErrValidationFailed   = errors.New("validation failed")
	ErrUnknownStatusType  = errors.New("unknown status type")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
)

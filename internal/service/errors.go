package service

import (
	"errors"

	"Lee_Timeline/internal/model"
)

var (
	ErrTargetNotFound  = errors.New("target not found")
	ErrDomainViolation = errors.New("domain violation")
	ErrUserDeactivated = errors.New("user deactivated")
	ErrDeleteRunning   = errors.New("bulk delete already running")

	ErrValidationFailed   = model.ErrValidationFailed
	ErrUnknownStatusType  = model.ErrUnknownStatusType
	ErrStorageUnavailable = model.ErrStorageUnavailable
)

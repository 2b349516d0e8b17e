// Package service holds helpers shared by the domain services below it.
package service

import (
	"errors"

	"github.com/jwalitptl/telehealth-api/internal/repository"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
)

var (
	ErrSlotTaken    = apperrors.NewConflict("slot is already booked")
	ErrStale        = apperrors.NewConflict("resource was modified by another request, retry")
	ErrPermission   = apperrors.NewForbidden("you do not have permission to perform this action")
	ErrNotPatient   = apperrors.NewForbidden("only patients can perform this action")
	ErrNotDoctor    = apperrors.NewForbidden("only doctors can perform this action")
	ErrNotAdmin     = apperrors.NewForbidden("only admins can perform this action")
	ErrNoDoctorInfo = apperrors.NewNotFound("doctor profile", nil)
)

// Translate maps repository sentinels onto client-facing errors. AppErrors pass
// through; anything unrecognised becomes an internal error.
func Translate(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrSlotUnavailable):
		return ErrSlotTaken
	case errors.Is(err, repository.ErrStaleState):
		return ErrStale
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource + " already exists")
	case errors.Is(err, repository.ErrInUse):
		return apperrors.NewConflict(resource + " is still referenced")
	}
	return apperrors.NewInternal(err)
}

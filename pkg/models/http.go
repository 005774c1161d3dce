package models

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// ToHTTPError maps domain errors to HTTP errors. Other errors are returned unchanged.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}

	var normalization *NormalizationError
	var conflict *ConflictError
	var partial *PartialMergeError

	switch {
	case errors.As(err, &partial):
		return httperror.NewHTTPError(http.StatusConflict, partial.Error()).
			AddMetaValue("target_id", partial.TargetID).
			AddMetaValue("linked", partial.Linked).
			AddMetaValue("failed", partial.Failed)
	case errors.As(err, &conflict):
		return httperror.NewHTTPError(http.StatusConflict, conflict.Error()).
			AddMetaValue("type", conflict.Type).
			AddMetaValue("value", conflict.Value).
			AddMetaValue("owner_id", conflict.OwnerID)
	case errors.As(err, &normalization):
		return httperror.NewHTTPError(http.StatusBadRequest, normalization.Error()).
			AddMetaValue("field", normalization.Field)
	case errors.Is(err, ErrNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBusy):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error()).
			AddMetaValue("retryable", true)
	}
	return err
}

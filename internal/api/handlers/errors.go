package handlers

import (
	"errors"
	"net/http"

	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/modelstore"
	"github.com/your-org/sam2engine/internal/provider"
	"github.com/your-org/sam2engine/pkg/dto"
)

// errorResponse maps a domain error (spec §7) onto an HTTP status and a
// typed ErrorResponse body.
func errorResponse(err error) (int, dto.ErrorResponse) {
	switch {
	case errors.Is(err, engine.ErrNotEncoded):
		return http.StatusConflict, dto.ErrorResponse{Kind: "NotEncoded", Message: err.Error()}
	case errors.Is(err, engine.ErrInit), errors.Is(err, provider.ErrInvalidTransition):
		return http.StatusInternalServerError, dto.ErrorResponse{Kind: "InitError", Message: err.Error()}
	case errors.Is(err, engine.ErrModelIO):
		return http.StatusInternalServerError, dto.ErrorResponse{Kind: "ModelIoError", Message: err.Error()}
	case errors.Is(err, engine.ErrDisposed):
		return http.StatusGone, dto.ErrorResponse{Kind: "InitError", Message: err.Error()}
	case errors.Is(err, modelstore.ErrNetwork):
		return http.StatusBadGateway, dto.ErrorResponse{Kind: "NetworkError", Message: err.Error()}
	case errors.Is(err, modelstore.ErrAborted), errors.Is(err, provider.ErrAborted):
		return http.StatusRequestTimeout, dto.ErrorResponse{Kind: "Aborted", Message: err.Error()}
	case errors.Is(err, modelstore.ErrCache):
		return http.StatusInternalServerError, dto.ErrorResponse{Kind: "CacheError", Message: err.Error()}
	case errors.Is(err, provider.ErrNoActiveSession), errors.Is(err, provider.ErrInvalidArguments):
		return http.StatusBadRequest, dto.ErrorResponse{Kind: "InvalidArguments", Message: err.Error()}
	default:
		return http.StatusInternalServerError, dto.ErrorResponse{Kind: "SegmentError", Message: err.Error()}
	}
}

package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	appCtx "github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/transport/rest/response"
)

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)
	case errors.Is(err, domain.ErrEventNotFound):
		fail(w, r, http.StatusNotFound, "event.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrNotOnWaitlist):
		fail(w, r, http.StatusNotFound, "waitlist.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyOnWaitlist):
		fail(w, r, http.StatusConflict, "waitlist.already_joined", err.Error(), nil)
	case errors.Is(err, domain.ErrWaitlistFull):
		fail(w, r, http.StatusConflict, "waitlist.full", err.Error(), nil)
	case errors.Is(err, domain.ErrRegistrationClosed):
		fail(w, r, http.StatusConflict, "registration.closed", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidStateTransition):
		var te *domain.TransitionError
		var meta map[string]string
		if errors.As(err, &te) {
			meta = map[string]string{"from": string(te.From), "to": string(te.To)}
		}
		fail(w, r, http.StatusConflict, "waitlist.invalid_transition", err.Error(), meta)
	case errors.Is(err, domain.ErrNothingToDraw):
		fail(w, r, http.StatusConflict, "draw.nothing_to_draw", err.Error(), nil)
	case errors.Is(err, domain.ErrStoreUnavailable):
		fail(w, r, http.StatusServiceUnavailable, "store.unavailable", "temporarily unavailable, retry", nil)
	default:
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	response.Fail(w, r, status, code, message, meta, appCtx.TraceID(r.Context()))
}

package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.LotteryService
}

func NewHandler(svc *service.LotteryService) *Handler {
	return &Handler{svc: svc}
}

type joinRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"required_with=Latitude,omitempty,longitude"`
}

type respondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// Join puts the caller on the event's waitlist. The body is optional unless
// the event requires a join location.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	var req joinRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	var loc *domain.Location
	if req.Latitude != nil && req.Longitude != nil {
		loc = &domain.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	entry, err := h.svc.Join(r.Context(), eventID, sess.UserID, loc)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusCreated, toEntryView(entry))
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	st, err := h.svc.LeaveWaitlist(r.Context(), eventID, sess.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, map[string]any{"status": st})
}

func (h *Handler) MyEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	entry, err := h.svc.GetEntry(r.Context(), eventID, sess.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, toEntryView(entry))
}

// Respond accepts or declines the caller's invitation.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	var req respondRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if meta := validateRequest(req); meta != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "validation failed", meta)
		return
	}

	res, err := h.svc.RespondToInvitation(r.Context(), eventID, sess.UserID, *req.Accept)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, respondView(res))
}

func (h *Handler) MyWaitlists(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	items, next, err := h.svc.ListEntrantHistory(r.Context(), sess.UserID, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, response.Page{
		Items:      toEntryViews(items),
		NextCursor: encodeCursor(next),
	})
}

func respondView(res service.RespondResult) map[string]any {
	out := map[string]any{"status": res.Status}
	if res.Replacement != nil {
		out["replacement_entrant_id"] = res.Replacement.String()
	}
	return out
}

func mustSession(w http.ResponseWriter, r *http.Request) (service.Session, bool) {
	sess, ok := SessionFrom(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
	}
	return sess, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid "+param, map[string]string{
			param: "must be a valid uuid",
		})
		return uuid.Nil, false
	}
	return id, true
}

// decodeOptional decodes and validates a JSON body; an empty body leaves dst
// untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil && r.Body != http.NoBody {
		if err := render.DecodeJSON(r.Body, dst); err != nil && !errors.Is(err, io.EOF) {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
			return false
		}
	}
	if meta := validateRequest(dst); meta != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "validation failed", meta)
		return false
	}
	return true
}

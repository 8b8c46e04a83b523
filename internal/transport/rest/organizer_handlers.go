package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/transport/rest/response"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type eventConfigRequest struct {
	// Honoured only for privileged callers creating a new event.
	OrganizerID string `json:"organizer_id" validate:"omitempty,uuid"`

	Capacity        *int `json:"capacity" validate:"omitempty,gte=0"`
	WaitlistLimited bool `json:"waitlist_limited"`
	WaitlistLimit   *int `json:"waitlist_limit" validate:"omitempty,gte=0"`

	RegistrationOpensAt  *time.Time `json:"registration_opens_at"`
	RegistrationClosesAt *time.Time `json:"registration_closes_at"`
	LotteryDrawAt        *time.Time `json:"lottery_draw_at"`

	RequireLocation bool `json:"require_location"`
}

func (h *Handler) ConfigureEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	var req eventConfigRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if meta := validateRequest(req); meta != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "validation failed", meta)
		return
	}

	cfg := domain.EventConfig{
		ID:                   eventID,
		Capacity:             req.Capacity,
		WaitlistLimited:      req.WaitlistLimited,
		WaitlistLimit:        req.WaitlistLimit,
		RegistrationOpensAt:  utc(req.RegistrationOpensAt),
		RegistrationClosesAt: utc(req.RegistrationClosesAt),
		LotteryDrawAt:        utc(req.LotteryDrawAt),
		RequireLocation:      req.RequireLocation,
	}
	if s := strings.TrimSpace(req.OrganizerID); s != "" {
		oid, err := uuid.Parse(s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid organizer_id", nil)
			return
		}
		cfg.OrganizerID = oid
	}

	ev, err := h.svc.ConfigureEvent(r.Context(), sess, cfg)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, toEventView(ev))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	if err := h.svc.DeleteEvent(r.Context(), sess, eventID); err != nil {
		handleErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	st, err := h.svc.GetStats(r.Context(), sess, eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	byStatus := map[domain.Status]int{
		domain.StatusWaiting: 0, domain.StatusInvited: 0, domain.StatusAccepted: 0,
		domain.StatusDeclined: 0, domain.StatusCancelled: 0,
	}
	for k, v := range st.ByStatus {
		byStatus[k] = v
	}
	response.Data(w, r, http.StatusOK, statsView{
		EventID:       st.EventID,
		Capacity:      st.Capacity,
		WaitingCount:  st.WaitingCount,
		AttendeeCount: st.AttendeeCount,
		ByStatus:      byStatus,
		UpdatedAt:     st.UpdatedAt,
	})
}

// Entries lists an event's entries in join order, optionally filtered by
// ?status=.
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	q := r.URL.Query()
	cur, err := decodeCursor(q.Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}
	status := domain.Status(strings.ToLower(strings.TrimSpace(q.Get("status"))))

	items, next, err := h.svc.ListEntries(r.Context(), sess, eventID, status, parseLimit(q.Get("limit")), cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, response.Page{
		Items:      toEntryViews(items),
		NextCursor: encodeCursor(next),
	})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	entrantID, ok := pathUUID(w, r, "entrantID")
	if !ok {
		return
	}

	res, err := h.svc.RevokeInvitation(r.Context(), sess, eventID, entrantID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, respondView(res))
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	entrantID, ok := pathUUID(w, r, "entrantID")
	if !ok {
		return
	}

	if err := h.svc.RemoveEntrant(r.Context(), sess, eventID, entrantID); err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, map[string]any{"status": domain.StatusCancelled})
}

// Draw runs the initial lottery for the event.
func (h *Handler) Draw(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	rec, err := h.svc.DrawAs(r.Context(), sess, eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusCreated, toDrawView(rec))
}

func (h *Handler) Draws(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}

	draws, err := h.svc.ListDraws(r.Context(), sess, eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	out := make([]drawView, 0, len(draws))
	for _, d := range draws {
		out = append(out, toDrawView(d))
	}
	response.Data(w, r, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) VerifyDraw(w http.ResponseWriter, r *http.Request) {
	sess, ok := mustSession(w, r)
	if !ok {
		return
	}
	eventID, ok := pathUUID(w, r, "eventID")
	if !ok {
		return
	}
	drawID, ok := pathUUID(w, r, "drawID")
	if !ok {
		return
	}

	rec, verified, err := h.svc.VerifyDraw(r.Context(), sess, eventID, drawID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, r, http.StatusOK, map[string]any{
		"draw":     toDrawView(rec),
		"verified": verified,
	})
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

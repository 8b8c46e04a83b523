package response

import (
	"net/http"

	"github.com/go-chi/render"
)

// Envelope is the success body: {"data": ...}
type Envelope struct {
	Data any `json:"data,omitempty"`
}

// ErrorBody is {"error":{"code":"...","message":"...","meta":{...},"request_id":"..."}}
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Page is a keyset page. NextCursor is empty on the last page.
type Page struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func Data(w http.ResponseWriter, r *http.Request, status int, payload any) {
	JSON(w, r, status, Envelope{Data: payload})
}

func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string, requestID string) {
	JSON(w, r, status, ErrorBody{
		Error: ErrorPayload{
			Code:      code,
			Message:   message,
			Meta:      meta,
			RequestID: requestID,
		},
	})
}

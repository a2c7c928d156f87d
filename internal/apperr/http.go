package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response is the JSON error body both transports send.
type Response struct {
	Error  string  `json:"error"`
	Code   Kind    `json:"code"`
	Issues []Issue `json:"issues,omitempty"`
}

// ToResponse maps err onto a status code and body. Untyped errors become a
// bare 500 so store details never reach the client.
func ToResponse(err error) (int, Response) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, Response{Error: "Internal server error", Code: KindFatal}
	}
	msg := e.Message
	if e.Kind == KindFatal {
		msg = "Internal server error"
	}
	return e.Status(), Response{Error: msg, Code: e.Kind, Issues: e.Issues}
}

func Write(w http.ResponseWriter, err error) {
	status, body := ToResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Package httpx holds the HTTP helpers shared by every feature package:
// the response envelope, error rendering and request decoding.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/user/postboard-go/apperror"
	"github.com/user/postboard-go/listquery"
	"github.com/user/postboard-go/logging"
)

// Response is the envelope every successful endpoint answers with.
type Response struct {
	Success    bool                  `json:"success" example:"true"`
	StatusCode int                   `json:"statusCode" example:"200"`
	Message    string                `json:"message,omitempty" example:"Post created successfully!"`
	Data       any                   `json:"data,omitempty"`
	Pagination *listquery.Pagination `json:"pagination,omitempty"`
}

// Send writes resp, deriving Success from the status code when it is left unset.
func Send(w http.ResponseWriter, resp Response) {
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	resp.Success = resp.StatusCode < http.StatusBadRequest
	WriteJSON(w, resp.StatusCode, resp)
}

// OK is shorthand for a 200 envelope.
func OK(w http.ResponseWriter, message string, data any) {
	Send(w, Response{StatusCode: http.StatusOK, Message: message, Data: data})
}

// WriteJSON serializes data to JSON and writes it with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing useful can reach the client.
		logrus.WithError(err).Error("failed to encode response")
	}
}

// WriteError converts err into the error envelope. Errors that are not
// AppErrors become a 500 whose details stay in the log.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.FromError(err)
	if !ok {
		appErr = apperror.NewInternalError("Something went wrong", err)
	}

	if appErr.StatusCode() >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error(appErr.Message)
	}
	WriteJSON(w, appErr.StatusCode(), appErr.ToResponse())
}

// Recoverer turns panics into a 500 envelope.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logging.FromContext(r.Context()).WithField("panic", rvr).Error("recovered from panic")
				WriteError(w, r, apperror.NewInternalError("internal server error", nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// NotFound answers unknown routes with the error envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, apperror.NewNotFoundError("API Not Found", nil).WithMessages(apperror.ErrorMessage{
		Path:    r.URL.Path,
		Message: "API Not Found",
	}))
}

package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	errorTypeInvalidRequest = "invalid_request_error"
	errorTypeConfiguration  = "configuration_error"
	errorTypeServer         = "server_error"

	internalErrorMessage = "Internal Server Error"
)

type requestError struct {
	Status  int
	Message string
	Type    string
}

func (e requestError) Error() string {
	return e.Message
}

// StatusCode lets the metrics middleware label the response correctly.
func (e requestError) StatusCode() int {
	return e.Status
}

func badRequest(message string) requestError {
	return requestError{
		Status:  http.StatusBadRequest,
		Message: message,
		Type:    errorTypeInvalidRequest,
	}
}

// errorBody carries a top-level detail string alongside the OpenAI-style
// error object.
type errorBody struct {
	Detail string    `json:"detail"`
	Error  errorInfo `json:"error"`
}

type errorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(c echo.Context, status int, message, errType string) error {
	return c.JSON(status, errorBody{
		Detail: message,
		Error:  errorInfo{Message: message, Type: errType},
	})
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
		errType := errorTypeInvalidRequest
		if he.Code >= http.StatusInternalServerError {
			errType = errorTypeServer
		}
		_ = writeError(c, he.Code, message, errType)
		return
	}

	s.logger.ErrorContext(c.Request().Context(), "unhandled error", "path", c.Path(), "error", err)
	_ = writeError(c, http.StatusInternalServerError, internalErrorMessage, errorTypeServer)
}

// Package http is the JSON transport of the API.
//
// This file implements the Builder Pattern for the response envelope every
// endpoint returns, successful or not.

package http

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the envelope written for every API response.
type APIResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ResponseBuilder provides a fluent API for building envelope responses.
type ResponseBuilder struct {
	statusCode int
	data       any
	message    string
	headers    map[string]string
	cookies    []*http.Cookie
}

// NewResponse creates a new response builder with default 200 status and an
// empty object as data.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		data:       struct{}{},
		message:    "Success",
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the data field of the envelope.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.data = data
	return b
}

// Message sets the message field of the envelope.
func (b *ResponseBuilder) Message(message string) *ResponseBuilder {
	b.message = message
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Cookie queues a Set-Cookie header.
func (b *ResponseBuilder) Cookie(c *http.Cookie) *ResponseBuilder {
	b.cookies = append(b.cookies, c)
	return b
}

// Cookies queues several Set-Cookie headers.
func (b *ResponseBuilder) Cookies(cs []*http.Cookie) *ResponseBuilder {
	b.cookies = append(b.cookies, cs...)
	return b
}

// Envelope returns the body that Write would send.
func (b *ResponseBuilder) Envelope() APIResponse {
	return APIResponse{
		StatusCode: b.statusCode,
		Data:       b.data,
		Message:    b.message,
		Success:    b.statusCode < http.StatusBadRequest,
	}
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	for _, c := range b.cookies {
		http.SetCookie(w, c)
	}

	body, err := json.Marshal(b.Envelope())
	if err != nil {
		body = []byte(`{"statusCode":500,"data":null,"message":"Internal server error","success":false}`)
		b.statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}

// ErrorResponse creates an envelope for a failed request. Data is null.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		Data(nil).
		Message(message)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnauthorizedError creates a 401 Unauthorized error response.
func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

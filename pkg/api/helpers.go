package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tphan267/roomlink/pkg/session"
)

// SuccessResp sends a successful API response
func SuccessResp(c *fiber.Ctx, data interface{}, meta ...ApiResponseMeta) error {
	resp := ApiResponse{
		Success: true,
		Data:    data,
	}
	if len(meta) > 0 {
		resp.Meta = &meta[0]
	}
	return c.Status(fiber.StatusOK).JSON(&resp)
}

// ListResp sends a list with its length in meta
func ListResp[T any](c *fiber.Ctx, items []T) error {
	if items == nil {
		items = []T{}
	}
	count := len(items)
	return SuccessResp(c, items, ApiResponseMeta{Count: &count})
}

// ErrorResp sends an error API response
func ErrorResp(c *fiber.Ctx, err ApiError, meta ...ApiResponseMeta) error {
	resp := ApiResponse{
		Success: false,
		Error:   &err,
	}
	if len(meta) > 0 {
		resp.Meta = &meta[0]
	}
	code := fiber.StatusBadRequest
	if err.Code != 0 {
		code = err.Code
	}
	return c.Status(code).JSON(&resp)
}

// ErrorCodeResp sends an error response with a specific status code
func ErrorCodeResp(c *fiber.Ctx, code int, message ...string) error {
	msg := "API Error"
	if len(message) > 0 {
		msg = message[0]
	}
	return ErrorResp(c, ApiError{
		Code:    code,
		Message: msg,
	})
}

// FaultResp maps a session fault to a response carrying its kind.
// Any other error becomes a 500.
func FaultResp(c *fiber.Ctx, err error) error {
	var fault *session.Fault
	if !errors.As(err, &fault) {
		return ErrorInternalServerErrorResp(c, err.Error())
	}

	code := fiber.StatusBadGateway
	if fault.Kind == session.FaultMediaUnavailable {
		code = fiber.StatusConflict
	}
	return ErrorResp(c, ApiError{
		Code:    code,
		Kind:    string(fault.Kind),
		Message: fault.Error(),
	})
}

// ErrorNotFoundResp sends a 404 Not Found error response
func ErrorNotFoundResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusNotFound, message...)
}

// ErrorUnauthorizedResp sends a 401 Unauthorized error response
func ErrorUnauthorizedResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusUnauthorized, message...)
}

// ErrorBadRequestResp sends a 400 Bad Request error response
func ErrorBadRequestResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusBadRequest, message...)
}

// ErrorInternalServerErrorResp sends a 500 Internal Server Error response
func ErrorInternalServerErrorResp(c *fiber.Ctx, message ...string) error {
	return ErrorCodeResp(c, fiber.StatusInternalServerError, message...)
}

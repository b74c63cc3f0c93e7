package server

import (
	"context"
	stderrors "errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wippyai/capture-bridge/dispatch"
	"github.com/wippyai/capture-bridge/errors"
)

// statusFor maps an error to an HTTP status by its kind.
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, dispatch.ErrClosed):
		return fiber.StatusServiceUnavailable
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return fiber.StatusGatewayTimeout
	}

	kind, ok := errors.KindOf(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch kind {
	case errors.KindInvalidInput, errors.KindInvalidData:
		return fiber.StatusBadRequest
	case errors.KindNotFound:
		return fiber.StatusNotFound
	case errors.KindNotBound:
		return fiber.StatusConflict
	case errors.KindModuleLoad, errors.KindMissingExport:
		return fiber.StatusUnprocessableEntity
	case errors.KindDriverError, errors.KindDriverFault, errors.KindCaptureEmpty, errors.KindOutOfBounds:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes {error, kind[, errorCode]} with the mapped status.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": err.Error()}
	if kind, ok := errors.KindOf(err); ok {
		body["kind"] = string(kind)
	}
	if code, ok := errors.StatusCode(err); ok {
		body["errorCode"] = code
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(body)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return s.fail(c, err)
}

package http

import (
	"errors"

	"github.com/cascadedb/branchdata/common"
	"github.com/gofiber/fiber/v2"
)

// ResponseError is the envelope returned to callers of the demo HTTP
// surface for any error produced by the dispatcher.
type ResponseError struct {
	Status  int    `json:"status,omitempty"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}

func (r ResponseError) Error() string {
	return r.Message
}

func jsonError(c *fiber.Ctx, status int, re ResponseError) error {
	re.Status = status
	return c.Status(status).JSON(re)
}

// WithError maps a typed error from the dispatch/pipeline layer onto an
// HTTP response, mirroring the taxonomy in common/errors.go.
func WithError(c *fiber.Ctx, err error) error {
	var (
		transportErr   common.TransportError
		conflictErr    common.ConflictPermanent
		transientErr   common.TransientNetwork
		validationErr  common.ValidationFailed
		autoValueErr   common.AutoValueResolution
		durableErr     common.DurableUnavailable
		unknownErr     common.UnknownAction
		recursionErr   common.RecursionGuard
	)

	switch {
	case errors.As(err, &transportErr):
		status := transportErr.Status
		if status < 400 {
			status = fiber.StatusBadGateway
		}

		return jsonError(c, status, ResponseError{Action: transportErr.Action, Message: transportErr.Error()})
	case errors.As(err, &conflictErr):
		return jsonError(c, fiber.StatusConflict, ResponseError{Action: conflictErr.Action, Message: conflictErr.Error()})
	case errors.As(err, &transientErr):
		return jsonError(c, fiber.StatusServiceUnavailable, ResponseError{Action: transientErr.Action, Message: transientErr.Error()})
	case errors.As(err, &validationErr):
		return jsonError(c, fiber.StatusBadRequest, ResponseError{Action: validationErr.Action, Message: validationErr.Error()})
	case errors.As(err, &autoValueErr):
		return jsonError(c, fiber.StatusBadRequest, ResponseError{Message: autoValueErr.Error()})
	case errors.As(err, &durableErr):
		return jsonError(c, fiber.StatusServiceUnavailable, ResponseError{Message: durableErr.Error()})
	case errors.As(err, &unknownErr):
		return jsonError(c, fiber.StatusNotFound, ResponseError{Action: unknownErr.Action, Message: unknownErr.Error()})
	case errors.As(err, &recursionErr):
		return jsonError(c, fiber.StatusConflict, ResponseError{Action: recursionErr.Action, Message: recursionErr.Error()})
	default:
		return jsonError(c, fiber.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
}

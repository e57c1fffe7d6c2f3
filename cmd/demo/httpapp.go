// Package main wires a runnable demo server on top of the Action
// Dispatcher, using the common.App/Launcher entrypoint pattern
// (common/app.go) and a fiber-based HTTP surface (Unauthorized/Forbidden
// -style JSON error envelopes, one fiber.App per process).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/common/mlog"
	chttp "github.com/cascadedb/branchdata/common/net/http"
	"github.com/cascadedb/branchdata/internal/bootstrap"
	"github.com/cascadedb/branchdata/internal/domain/model"
)

// httpApp is the common.App implementation serving the dispatcher over
// HTTP. One httpApp per process; tenants are distinguished per-request by
// the x-tenant-id header, each resolving to its own bootstrap.Client via
// Manager.
type httpApp struct {
	cfg     *bootstrap.Config
	manager *bootstrap.Manager
	addr    string
}

var _ common.App = (*httpApp)(nil)

// newFiberApp builds the fiber app and registers every route, kept
// separate from Run's blocking serve loop so a test can drive routes
// directly via app.Test without starting a listener.
func newFiberApp(a *httpApp) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(chttp.WithCorrelationID())
	app.Use(chttp.WithCORS())

	app.Get("/healthz", a.handleHealth)
	app.Post("/actions", a.handleAction)
	app.Get("/actions/queue", a.handleQueueStatus)
	app.Post("/actions/queue/drain", a.handleQueueDrain)

	return app
}

// Run implements common.App: builds the fiber app, registers routes, and
// blocks serving until the process receives an interrupt.
func (a *httpApp) Run(launcher *common.Launcher) error {
	app := newFiberApp(a)

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(a.addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		launcher.Logger.Info("demo: shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return app.ShutdownWithContext(ctx)
	}
}

func (a *httpApp) tenantClient(c *fiber.Ctx, logger mlog.Logger) (*bootstrap.Client, error) {
	tenantID := c.Get("x-tenant-id")
	if tenantID == "" {
		tenantID = "default"
	}

	return a.manager.For(tenantID, logger)
}

func (a *httpApp) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// actionRequest is the wire envelope for POST /actions: the action string,
// the payload, the option bag, and the branch context the caller is
// currently on.
type actionRequest struct {
	Action  string              `json:"action"`
	Data    model.Record        `json:"data"`
	Options actionOptions       `json:"options"`
	Branch  model.BranchContext `json:"branchContext"`
}

type actionOptions struct {
	SkipCache         bool           `json:"skipCache"`
	NavigationContext map[string]any `json:"navigationContext"`
	Filters           map[string]any `json:"filters"`
	Limit             int            `json:"limit"`
	Offset            int            `json:"offset"`
	Reason            string         `json:"reason"`
	Description       string         `json:"description"`
}

func (a *httpApp) handleAction(c *fiber.Ctx) error {
	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return chttp.WithError(c, common.ValidationFailed{Message: "invalid request body", Err: err})
	}

	ctx := c.Context()

	client, err := a.tenantClient(c, nil)
	if err != nil {
		return chttp.WithError(c, common.DurableUnavailable{Message: err.Error(), Err: err})
	}

	reqCtx := model.RequestContext{
		Branch:    req.Branch,
		RequestID: c.Get("x-request-id"),
	}

	opts := model.Options{
		SkipCache:         req.Options.SkipCache,
		NavigationContext: req.Options.NavigationContext,
		Filters:           req.Options.Filters,
		Limit:             req.Options.Limit,
		Offset:            req.Options.Offset,
		Reason:            req.Options.Reason,
		Description:       req.Options.Description,
	}

	result, err := client.Dispatcher.DispatchRaw(ctx, req.Action, req.Data, opts, reqCtx)
	if err != nil {
		return chttp.WithError(c, err)
	}

	// Reads report an unregistered action, and both pipelines report other
	// expected failures, through Success/Error on the result envelope
	// rather than a Go error (DispatchRaw returns one only for a malformed
	// action string, an unregistered write resource or the recursion
	// guard), so the envelope case is mapped here too.
	switch v := result.(type) {
	case model.WriteResult:
		if !v.Success {
			return chttp.WithError(c, common.ValidationFailed{Action: req.Action, Message: v.Error})
		}
	case model.ReadResult:
		if !v.Success {
			return chttp.WithError(c, common.ValidationFailed{Action: req.Action, Message: v.Error})
		}
	}

	return c.JSON(result)
}

func (a *httpApp) handleQueueStatus(c *fiber.Ctx) error {
	client, err := a.tenantClient(c, nil)
	if err != nil {
		return chttp.WithError(c, common.DurableUnavailable{Message: err.Error(), Err: err})
	}

	status, err := client.Queue.Status(c.Context())
	if err != nil {
		return chttp.WithError(c, err)
	}

	return c.JSON(status)
}

func (a *httpApp) handleQueueDrain(c *fiber.Ctx) error {
	client, err := a.tenantClient(c, nil)
	if err != nil {
		return chttp.WithError(c, common.DurableUnavailable{Message: err.Error(), Err: err})
	}

	// The drain response carries a "delivered" count alongside any error, a
	// shape WithError's single-message envelope doesn't have room for, so
	// this path keeps its own JSON body rather than going through it.
	delivered, err := client.DrainQueue(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"delivered": delivered, "error": err.Error()})
	}

	return c.JSON(fiber.Map{"delivered": delivered})
}

// Package resttransport is the concrete Remote Transport engine: a
// resty-backed client for the single JSON action endpoint, grounded on
// common/net/http's header conventions (x-tenant-id) and on go-resty's
// standard request-builder idiom referenced (indirectly) by
// evalgo-org-eve's go.mod for outbound HTTP calls.
package resttransport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/common/mlog"
	"github.com/cascadedb/branchdata/internal/domain/model"
	"github.com/cascadedb/branchdata/internal/domain/transport"
)

const tenantHeader = "x-tenant-id"

// DefaultActionPath and DefaultChangeLogPath are the remote endpoint's
// external interface paths.
const (
	DefaultActionPath    = "/api/workspaces/current/actions"
	DefaultChangeLogPath = "/api/workspaces/current/actions/version"
)

// Client is the resty-backed transport.Transport implementation.
type Client struct {
	http      *resty.Client
	actionURL string
	changeURL string
	logger    mlog.Logger
}

var _ transport.Transport = (*Client)(nil)

// Options configures a Client.
type Options struct {
	BaseURL  string
	TenantID string
	Timeout  time.Duration
	Logger   mlog.Logger
}

// New builds a resty-backed client against baseURL, pre-setting the
// x-tenant-id header for every request.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = &mlog.NoneLogger{}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader(tenantHeader, opts.TenantID)

	return &Client{
		http:      rc,
		actionURL: DefaultActionPath,
		changeURL: DefaultChangeLogPath,
		logger:    opts.Logger,
	}
}

// Dispatch implements transport.Transport.
func (c *Client) Dispatch(ctx context.Context, req model.RemoteRequest) (model.RemoteResponse, error) {
	var body model.RemoteResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post(c.actionURL)
	if err != nil {
		c.logger.Warnf("resttransport: %s unreachable: %s", req.Action, err)

		return model.RemoteResponse{}, common.TransientNetwork{
			Action:  req.Action,
			Message: err.Error(),
			Err:     err,
		}
	}

	if resp.IsError() {
		return model.RemoteResponse{}, classifyHTTPError(req.Action, resp.StatusCode(), resp.String())
	}

	if !body.Success && body.Error != "" {
		return body, fmt.Errorf("remote action %s failed: %s", req.Action, body.Error)
	}

	return body, nil
}

// PostChangeEvent implements transport.Transport. A failure here is logged
// by the caller (the Change Tracker), never propagated as a write failure.
func (c *Client) PostChangeEvent(ctx context.Context, event model.ChangeEvent) error {
	envelope := struct {
		Action string            `json:"action"`
		Data   model.ChangeEvent `json:"data"`
	}{Action: "changeLog.create", Data: event}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(envelope).
		Post(c.changeURL)
	if err != nil {
		return common.TransientNetwork{Action: "changeLog.create", Message: err.Error(), Err: err}
	}

	if resp.IsError() {
		return classifyHTTPError("changeLog.create", resp.StatusCode(), resp.String())
	}

	return nil
}

// classifyHTTPError maps a non-2xx response to the error taxonomy: 409
// bodies containing "already exists" are ConflictPermanent, everything else
// is a TransportError carrying the original status.
func classifyHTTPError(action string, status int, body string) error {
	if status == 409 && strings.Contains(strings.ToLower(body), "already exists") {
		return common.ConflictPermanent{Action: action, Message: extractErrorMessage(body)}
	}

	return common.TransportError{Action: action, Status: status, Message: extractErrorMessage(body)}
}

func extractErrorMessage(body string) string {
	var payload struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Error != "" {
		return payload.Error
	}

	return body
}

// Package transport defines the port for the Remote Transport: the single
// JSON action endpoint client. The concrete engine (resty-backed) lives in
// internal/adapters/resttransport.
package transport

import (
	"context"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

// Transport sends a single action request to the remote action-router and
// normalizes its response/error.
type Transport interface {
	// Dispatch sends req and returns the normalized response. Non-2xx
	// responses are surfaced as common.TransportError (or
	// common.ConflictPermanent for a 409 body containing "already
	// exists"); network failures are surfaced as common.TransientNetwork.
	Dispatch(ctx context.Context, req model.RemoteRequest) (model.RemoteResponse, error)

	// PostChangeEvent delivers a change-tracking event to the change-log
	// endpoint. Failures here are the Change Tracker's concern to swallow,
	// not this port's.
	PostChangeEvent(ctx context.Context, event model.ChangeEvent) error
}

// Package autovalue implements the Auto-Value Service: resolving
// schema-declared generated field values (ids, tenant, branch, session,
// navigation) against a request context. Grounded on pkg.GenerateUUIDv7
// -style id helpers, generalized to a full "auto.*" / "session.*" /
// "navigation.*" source grammar.
package autovalue

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadedb/branchdata/common"
	"github.com/cascadedb/branchdata/internal/domain/model"
)

// Clock is the source of "now" for auto.timestamp resolution, overridable
// in tests so idempotence can be asserted without racing the wall clock.
type Clock func() time.Time

// IDGenerator produces a fresh random id for auto.uuid; overridable in
// tests for deterministic assertions.
type IDGenerator func() string

// ShortIDSuffix produces the random 5-character suffix for
// auto.<prefix>ShortId; overridable in tests.
type ShortIDSuffix func() string

// Service resolves auto-value fields for a schema against a context.
type Service struct {
	Now         Clock
	NewID       IDGenerator
	ShortSuffix ShortIDSuffix
}

// New builds a Service with the production clock/id-generator. Each
// resolution call is otherwise pure given the context it is handed, so
// idempotence holds for every field except auto.uuid and
// auto.<prefix>ShortId, whose non-idempotent randomness is inherent to
// "generate a fresh identity" and is excluded from the non-random-fields
// idempotence guarantee.
func New() *Service {
	return &Service{
		Now:         time.Now,
		NewID:       func() string { return uuid.NewString() },
		ShortSuffix: randomShortSuffix,
	}
}

const shortIDSuffixLen = 5

func randomShortSuffix() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	b := make([]byte, shortIDSuffixLen)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))] //nolint:gosec
	}

	return string(b)
}

// Resolve fills every schema field declared `autoValue` and absent from
// payload. Resolution is shallow: only top-level fields declared on the
// schema are considered, matching the source system's per-resource (not
// per-junction-of-junction) auto-value application.
func (s *Service) Resolve(schema model.Schema, payload model.Record, reqCtx model.RequestContext) (model.Record, error) {
	out := payload.Clone()
	if out == nil {
		out = model.Record{}
	}

	for _, field := range schema.Fields {
		if field.AutoValue == nil {
			continue
		}

		if _, present := out[field.Key]; present {
			continue
		}

		value, err := s.resolveSource(field.AutoValue.Source, reqCtx)
		if err != nil {
			if field.Required {
				return nil, common.AutoValueResolution{
					Field:   field.Key,
					Source:  field.AutoValue.Source,
					Message: err.Error(),
				}
			}

			continue
		}

		out[field.Key] = value
	}

	return out, nil
}

func (s *Service) resolveSource(source string, reqCtx model.RequestContext) (any, error) {
	switch {
	case source == "auto.uuid":
		return s.NewID(), nil
	case strings.HasPrefix(source, "auto.") && strings.HasSuffix(source, "ShortId"):
		return s.shortID(source), nil
	case source == "auto.timestamp":
		return s.Now().UTC().Format(time.RFC3339Nano), nil
	case source == "session.user.id":
		if reqCtx.Branch.UserID == "" {
			return nil, fmt.Errorf("session.user.id not present in context")
		}

		return reqCtx.Branch.UserID, nil
	case source == "session.user.tenantId":
		if reqCtx.Branch.TenantID == "" {
			return nil, fmt.Errorf("session.user.tenantId not present in context")
		}

		return reqCtx.Branch.TenantID, nil
	case source == "session.user.branchContext.currentBranchId":
		if reqCtx.Branch.CurrentBranchID == "" {
			return nil, fmt.Errorf("session.user.branchContext.currentBranchId not present in context")
		}

		return reqCtx.Branch.CurrentBranchID, nil
	case strings.HasPrefix(source, "navigation."):
		field := strings.TrimPrefix(source, "navigation.")

		if reqCtx.NavigationContext == nil {
			return nil, fmt.Errorf("navigation context absent, field %q", field)
		}

		v, ok := reqCtx.NavigationContext[field]
		if !ok {
			return nil, fmt.Errorf("navigation field %q not present", field)
		}

		return v, nil
	default:
		return nil, fmt.Errorf("unrecognized auto-value source %q", source)
	}
}

// shortID derives the single-letter prefix from "auto.<prefix>ShortId" and
// produces "<letter><5 chars from [A-Z0-9]>". Collisions are not detected:
// the durable store keys rows by their auto.uuid-backed "id", so two rows
// that share a shortId are both kept and neither overwrites the other —
// shortId is a human-facing label, never the storage key.
func (s *Service) shortID(source string) string {
	prefix := strings.TrimSuffix(strings.TrimPrefix(source, "auto."), "ShortId")
	letter := "X"

	if prefix != "" {
		letter = strings.ToUpper(prefix[:1])
	}

	return letter + s.ShortSuffix()
}

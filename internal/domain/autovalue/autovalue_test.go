package autovalue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

func fixedService() *Service {
	return &Service{
		Now:         func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID:       func() string { return "fixed-uuid" },
		ShortSuffix: func() string { return "ABCDE" },
	}
}

func testSchema() model.Schema {
	return model.Schema{
		ActionPrefix: "node",
		Fields: []model.FieldSpec{
			{Key: "id", Required: true, AutoValue: &model.AutoValueSpec{Source: "auto.uuid"}},
			{Key: "shortId", AutoValue: &model.AutoValueSpec{Source: "auto.nShortId"}},
			{Key: "tenantId", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "nodeId", AutoValue: &model.AutoValueSpec{Source: "navigation.nodeId"}},
			{Key: "createdAt", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "name", Required: true},
		},
	}
}

func TestResolve_FillsEveryDeclaredField(t *testing.T) {
	s := fixedService()
	reqCtx := model.RequestContext{
		Branch: model.BranchContext{CurrentBranchID: "feat-1", DefaultBranchID: "main", TenantID: "tenant-a"},
		NavigationContext: map[string]any{"nodeId": "n-parent"},
	}

	out, err := s.Resolve(testSchema(), model.Record{"name": "root"}, reqCtx)
	require.NoError(t, err)

	assert.Equal(t, "fixed-uuid", out["id"])
	assert.Equal(t, "NABCDE", out["shortId"])
	assert.Equal(t, "tenant-a", out["tenantId"])
	assert.Equal(t, "feat-1", out["branchId"])
	assert.Equal(t, "n-parent", out["nodeId"])
	assert.Equal(t, "2026-01-02T03:04:05Z", out["createdAt"])
	assert.Equal(t, "root", out["name"])
}

func TestResolve_NeverOverwritesPresentField(t *testing.T) {
	s := fixedService()
	reqCtx := model.RequestContext{Branch: model.BranchContext{CurrentBranchID: "main", DefaultBranchID: "main", TenantID: "t1"}}

	out, err := s.Resolve(testSchema(), model.Record{"id": "caller-supplied", "name": "root"}, reqCtx)
	require.NoError(t, err)

	assert.Equal(t, "caller-supplied", out["id"])
}

func TestResolve_MissingRequiredSourceFails(t *testing.T) {
	s := fixedService()
	reqCtx := model.RequestContext{} // no tenant/branch/user present

	_, err := s.Resolve(testSchema(), model.Record{"name": "root"}, reqCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenantId")
}

func TestResolve_MissingOptionalSourceIsSkipped(t *testing.T) {
	s := fixedService()
	reqCtx := model.RequestContext{
		Branch: model.BranchContext{CurrentBranchID: "main", DefaultBranchID: "main", TenantID: "t1"},
	}

	out, err := s.Resolve(testSchema(), model.Record{"name": "root"}, reqCtx)
	require.NoError(t, err)
	_, hasNodeID := out["nodeId"]
	assert.False(t, hasNodeID, "an unresolved optional autoValue field must be left absent, not zero-valued")
}

func TestResolve_TimestampIsIdempotentAcrossCallsWithSameClock(t *testing.T) {
	s := fixedService()
	reqCtx := model.RequestContext{Branch: model.BranchContext{CurrentBranchID: "main", DefaultBranchID: "main", TenantID: "t1"}}

	a, err := s.Resolve(testSchema(), model.Record{"name": "root"}, reqCtx)
	require.NoError(t, err)

	b, err := s.Resolve(testSchema(), model.Record{"name": "root"}, reqCtx)
	require.NoError(t, err)

	assert.Equal(t, a["createdAt"], b["createdAt"])
}

func TestShortID_FallsBackToXWhenPrefixEmpty(t *testing.T) {
	s := fixedService()
	assert.Equal(t, "XABCDE", s.shortID("auto.ShortId"))
}

// Package junction implements the Junction Auto-Manager: discovering
// junction schemas, inferring parent-action bindings, and creating
// junction rows after parent entity writes. Grounded on the dispatcher's
// own action-registry shape (internal/domain/dispatch) — junction creation
// is just another dispatch, never a raw remote call.
package junction

import (
	"context"
	"strings"

	"github.com/cascadedb/branchdata/internal/domain/key"
	"github.com/cascadedb/branchdata/internal/domain/model"
)

// Dispatcher is the minimal slice of the Action Dispatcher the manager
// needs: the ability to issue another action through the same system,
// carrying the recursion-guard token.
type Dispatcher interface {
	Dispatch(ctx context.Context, action model.Action, data model.Record, reqCtx model.RequestContext) (model.WriteResult, error)
}

// binding is one registry entry: a parent action and the junction schemas
// it should drive.
type binding struct {
	parentAction   string // "<resource>.create"
	junctionPrefix string
	junctionSchema model.Schema
}

// Manager discovers managed junctions at first use and drives their
// auto-create/update/delete from parent entity writes.
type Manager struct {
	registry model.Registry
	bindings map[string][]binding // parentAction -> bindings
	built    bool
}

// New builds a Manager against the full schema registry. Discovery itself
// is deferred to first use ("at first use, scan all known schemas"), so a
// registry that is still being assembled at construction time is safe to
// pass.
func New(registry model.Registry) *Manager {
	return &Manager{registry: registry}
}

func (m *Manager) ensureBuilt() {
	if m.built {
		return
	}

	m.bindings = make(map[string][]binding)

	for _, schema := range m.registry {
		if !schema.IsJunction() {
			continue
		}

		parent := inferParentAction(m.registry, schema)
		if parent == "" {
			continue
		}

		m.bindings[parent] = append(m.bindings[parent], binding{
			parentAction:   parent,
			junctionPrefix: schema.ActionPrefix,
			junctionSchema: schema,
		})
	}

	m.built = true
}

// inferParentAction finds the parent entity's create action for a junction
// schema. Well-known junctions may declare their parent directly via a
// "parentAction" navigation-context convention is not part of the schema
// type, so inference instead walks fieldMappings for the relation whose
// target is not "branch" and whose target resource exists in the registry
// — the first such target (by field-name order) is treated as the parent.
func inferParentAction(registry model.Registry, schema model.Schema) string {
	var fields []string
	for field := range schema.FieldMappings {
		fields = append(fields, field)
	}

	sortStrings(fields)

	for _, field := range fields {
		mapping := schema.FieldMappings[field]
		if mapping.Type != "relation" || mapping.Target == "branch" {
			continue
		}

		if target, ok := registry[mapping.Target]; ok && !target.IsJunction() {
			return mapping.Target + ".create"
		}
	}

	return ""
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// ShouldAutoCreate reports whether every key in schema's
// junctionConfig.navigationContext is present (non-nil) in parentData or
// navigationContext.
func ShouldAutoCreate(schema model.Schema, parentData model.Record, navigationContext map[string]any) bool {
	if schema.JunctionConfig == nil {
		return false
	}

	for _, sourceKey := range schema.JunctionConfig.NavigationContext {
		if _, ok := lookup(parentData, navigationContext, sourceKey); !ok {
			return false
		}
	}

	return true
}

func lookup(parentData model.Record, navigationContext map[string]any, dotted string) (any, bool) {
	key := dotted
	if strings.HasPrefix(dotted, "navigation.") {
		key = strings.TrimPrefix(dotted, "navigation.")
	}

	if navigationContext != nil {
		if v, ok := navigationContext[key]; ok && v != nil {
			return v, true
		}
	}

	if v, ok := parentData[key]; ok && v != nil {
		return v, true
	}

	return nil, false
}

// AfterParentCreate drives auto-create for every junction schema bound to
// "<parentResource>.create".
func (m *Manager) AfterParentCreate(ctx context.Context, dispatcher Dispatcher, parentAction string, parentData model.Record, reqCtx model.RequestContext) []error {
	m.ensureBuilt()

	var errs []error

	for _, b := range m.bindings[parentAction] {
		if !ShouldAutoCreate(b.junctionSchema, parentData, reqCtx.NavigationContext) {
			continue
		}

		payload := m.buildCreatePayload(b.junctionSchema, parentAction, parentData, reqCtx.NavigationContext)

		act := model.Action{Resource: b.junctionPrefix, Verb: model.VerbCreate}

		if _, err := dispatcher.Dispatch(ctx, act, payload, reqCtx.WithParent(parentAction)); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// buildCreatePayload implements the four-step creation algorithm: copy
// navigationContext-listed keys, apply defaults, bind the parent-entity
// field to the new parent's base id (key.BaseID, not the raw record id),
// unless already provided. Binding the base id rather than parentData.ID()
// keeps two junction rows created against different branch clones of the
// same parent hashing to the same lineage key.
func (m *Manager) buildCreatePayload(schema model.Schema, parentAction string, parentData model.Record, navigationContext map[string]any) model.Record {
	payload := model.Record{}

	for field, sourceKey := range schema.JunctionConfig.NavigationContext {
		if v, ok := lookup(parentData, navigationContext, sourceKey); ok {
			payload[field] = v
		}
	}

	for field, v := range schema.JunctionConfig.Defaults {
		if _, present := payload[field]; !present {
			payload[field] = v
		}
	}

	parentEntity := strings.TrimSuffix(parentAction, ".create")

	for field, mapping := range schema.FieldMappings {
		if mapping.Target != parentEntity {
			continue
		}

		if _, present := payload[field]; !present {
			payload[field] = key.BaseID(parentData)
		}
	}

	return payload
}

// junctionsForParent exposes the bound junction schemas for a parent
// action, used by update/delete flows and by tests asserting discovery.
func (m *Manager) junctionsForParent(parentAction string) []binding {
	m.ensureBuilt()
	return m.bindings[parentAction]
}

// AfterParentUpdate drives auto-update for junctions bound to the parent's
// create action, limited to the fields the schema explicitly names
// (currently limited to the fields/entities explicitly named in the
// schema — a general junctionQueryByParent capability is left as future
// work). Only junction fields also present in parentUpdate are refreshed,
// so an update that doesn't touch a navigationContext-listed field is a
// no-op. parentID must already be the parent's base id (key.BaseID), not a
// branch-clone record id, so the rebound fk keeps hashing to the same
// lineage key regardless of which branch triggered the update.
func (m *Manager) AfterParentUpdate(ctx context.Context, dispatcher Dispatcher, parentCreateAction string, parentID string, parentUpdate model.Record, reqCtx model.RequestContext) []error {
	var errs []error

	for _, b := range m.junctionsForParent(parentCreateAction) {
		payload := model.Record{}

		for field, sourceKey := range b.junctionSchema.JunctionConfig.NavigationContext {
			key := strings.TrimPrefix(sourceKey, "navigation.")
			if v, ok := parentUpdate[key]; ok {
				payload[field] = v
			}
		}

		if len(payload) == 0 {
			continue
		}

		parentEntity := strings.TrimSuffix(parentCreateAction, ".create")

		for field, mapping := range b.junctionSchema.FieldMappings {
			if mapping.Target == parentEntity {
				payload[field] = parentID
			}
		}

		act := model.Action{Resource: b.junctionPrefix, Verb: model.VerbUpdate}

		if _, err := dispatcher.Dispatch(ctx, act, payload, reqCtx.WithParent(parentCreateAction)); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// AfterParentDelete drives auto-delete for junctions bound to the parent's
// create action, identifying the junction row solely by the parent-entity
// foreign-key field set to parentID — the same explicit-fields-only
// limitation as AfterParentUpdate. As with AfterParentUpdate, parentID must
// already be the parent's base id.
func (m *Manager) AfterParentDelete(ctx context.Context, dispatcher Dispatcher, parentCreateAction string, parentID string, reqCtx model.RequestContext) []error {
	var errs []error

	parentEntity := strings.TrimSuffix(parentCreateAction, ".create")

	for _, b := range m.junctionsForParent(parentCreateAction) {
		payload := model.Record{}

		for field, mapping := range b.junctionSchema.FieldMappings {
			if mapping.Target == parentEntity {
				payload[field] = parentID
			}
		}

		act := model.Action{Resource: b.junctionPrefix, Verb: model.VerbDelete}

		if _, err := dispatcher.Dispatch(ctx, act, payload, reqCtx.WithParent(parentCreateAction)); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

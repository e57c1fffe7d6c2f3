package dispatch

import "github.com/cascadedb/branchdata/internal/domain/model"

// DefaultSchemas builds the demo registry: node, process, rule, workflow as
// parent entities, and nodeProcesses/processRules/ruleIgnores as their
// managed junctions. A real deployment would generate this table from
// whatever declares resource schemas upstream (e.g. a Prisma/OpenAPI
// schema file); this module treats the table itself as the boundary.
func DefaultSchemas() model.Registry {
	registry := model.Registry{}

	registry["node"] = model.Schema{
		DatabaseKey:  "nodes",
		ActionPrefix: "node",
		Fields: []model.FieldSpec{
			{Key: "id", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "auto.uuid"}},
			{Key: "shortId", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.nShortId"}},
			{Key: "tenantId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "name", Type: "string", Required: true},
			{Key: "createdAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "updatedAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
		},
		IndexedDBKey: func(r map[string]any) string { return stringField(r, "id") },
	}

	registry["process"] = model.Schema{
		DatabaseKey:  "processes",
		ActionPrefix: "process",
		Fields: []model.FieldSpec{
			{Key: "id", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "auto.uuid"}},
			{Key: "shortId", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.pShortId"}},
			{Key: "tenantId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "name", Type: "string", Required: true},
			{Key: "nodeId", Type: "string", AutoValue: &model.AutoValueSpec{Source: "navigation.nodeId"}},
			{Key: "createdAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "updatedAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
		},
		IndexedDBKey: func(r map[string]any) string { return stringField(r, "id") },
	}

	registry["rule"] = model.Schema{
		DatabaseKey:  "rules",
		ActionPrefix: "processRule",
		Fields: []model.FieldSpec{
			{Key: "id", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "auto.uuid"}},
			{Key: "shortId", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.rShortId"}},
			{Key: "tenantId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "name", Type: "string", Required: true},
			{Key: "processId", Type: "string", AutoValue: &model.AutoValueSpec{Source: "navigation.processId"}},
			{Key: "createdAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "updatedAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
		},
		IndexedDBKey: func(r map[string]any) string { return stringField(r, "id") },
	}

	registry["workflow"] = model.Schema{
		DatabaseKey:  "workflows",
		ActionPrefix: "workflow",
		Fields: []model.FieldSpec{
			{Key: "id", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "auto.uuid"}},
			{Key: "shortId", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.wShortId"}},
			{Key: "tenantId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "name", Type: "string", Required: true},
			{Key: "createdAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "updatedAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
		},
		IndexedDBKey: func(r map[string]any) string { return stringField(r, "id") },
	}

	registry["nodeProcesses"] = model.Schema{
		DatabaseKey:  "nodeProcesses",
		ActionPrefix: "nodeProcesses",
		FieldMappings: map[string]model.FieldMapping{
			"nodeId":    {Type: "relation", Target: "node"},
			"processId": {Type: "relation", Target: "process"},
			"branchId":  {Type: "relation", Target: "branch"},
		},
		JunctionConfig: &model.JunctionConfig{
			AutoCreateOnParentCreate: true,
			NavigationContext:        map[string]string{"nodeId": "navigation.nodeId"},
		},
		Fields: []model.FieldSpec{
			{Key: "nodeId", Type: "string", Required: true},
			{Key: "processId", Type: "string", Required: true},
			{Key: "tenantId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "createdAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "updatedAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
		},
		IndexedDBKey: func(r map[string]any) string {
			return stringField(r, "nodeId") + ":" + stringField(r, "processId")
		},
	}

	registry["processRules"] = model.Schema{
		DatabaseKey:  "processRules",
		ActionPrefix: "processRules",
		FieldMappings: map[string]model.FieldMapping{
			"processId": {Type: "relation", Target: "process"},
			"ruleId":    {Type: "relation", Target: "rule"},
			"branchId":  {Type: "relation", Target: "branch"},
		},
		JunctionConfig: &model.JunctionConfig{
			AutoCreateOnParentCreate: true,
			NavigationContext:        map[string]string{"processId": "navigation.processId"},
		},
		Fields: []model.FieldSpec{
			{Key: "processId", Type: "string", Required: true},
			{Key: "ruleId", Type: "string", Required: true},
			{Key: "tenantId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "createdAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "updatedAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
		},
		IndexedDBKey: func(r map[string]any) string {
			return stringField(r, "processId") + ":" + stringField(r, "ruleId")
		},
	}

	registry["ruleIgnores"] = model.Schema{
		DatabaseKey:  "ruleIgnores",
		ActionPrefix: "ruleIgnores",
		FieldMappings: map[string]model.FieldMapping{
			"ruleId":     {Type: "relation", Target: "rule"},
			"workflowId": {Type: "relation", Target: "workflow"},
			"branchId":   {Type: "relation", Target: "branch"},
		},
		JunctionConfig: &model.JunctionConfig{
			AutoCreateOnParentCreate: true,
			NavigationContext:        map[string]string{"ruleId": "navigation.ruleId"},
		},
		Fields: []model.FieldSpec{
			{Key: "ruleId", Type: "string", Required: true},
			{Key: "workflowId", Type: "string", Required: true},
			{Key: "tenantId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.tenantId"}},
			{Key: "branchId", Type: "string", Required: true, AutoValue: &model.AutoValueSpec{Source: "session.user.branchContext.currentBranchId"}},
			{Key: "createdAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
			{Key: "updatedAt", Type: "string", AutoValue: &model.AutoValueSpec{Source: "auto.timestamp"}},
		},
		IndexedDBKey: func(r map[string]any) string {
			return stringField(r, "ruleId") + ":" + stringField(r, "workflowId")
		},
	}

	return registry
}

// DefaultJunctionSideLoads: list reads on node/process/rule/workflow side-load the
// junction stores that reference them.
func DefaultJunctionSideLoads() map[string][]string {
	return map[string][]string{
		"node":     {"nodeProcesses"},
		"process":  {"nodeProcesses", "processRules"},
		"rule":     {"processRules", "ruleIgnores"},
		"workflow": {"ruleIgnores"},
	}
}

func stringField(r map[string]any, key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}

	return ""
}

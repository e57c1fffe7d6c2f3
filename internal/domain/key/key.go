// Package key implements Compound Key & Identity: building and inspecting
// the storage keys every other component treats as opaque, plus the
// deterministic ordering rules (tie-break, branch score) the overlay read
// path relies on.
package key

import (
	"strings"

	"github.com/cascadedb/branchdata/internal/domain/model"
)

// Pair is the compound key `(baseId, branchId)` used natively as a bbolt
// bucket key. It is exactly two non-empty strings and is never collapsed
// to a delimited string: range scans depend on lexicographic ordering of
// the ordered pair, not of a joined string.
type Pair struct {
	BaseID   string
	BranchID string
}

// CompoundKey builds the native storage key for a branch-scoped record.
func CompoundKey(id, branchID string) Pair {
	return Pair{BaseID: id, BranchID: branchID}
}

// EntityBucket returns the nested-bucket name durable adapters use to group
// every branch clone of the same base id together, so one bucket lookup
// reaches all of them without ever joining baseId and branchID into one
// string.
func EntityBucket(id string) []byte {
	return []byte(id)
}

// BranchMatches reports whether p belongs to branchID (an exact match on
// the branch id).
func (p Pair) BranchMatches(branchID string) bool {
	return p.BranchID == branchID
}

// BaseID returns the stable identity shared by a record and all its
// branched clones: the first present of `originalId`, any `original<X>Id`
// field, else `id`.
func BaseID(record model.Record) string {
	if v := record.String("originalId"); v != "" {
		return v
	}

	for k, v := range record {
		if strings.HasPrefix(k, "original") && strings.HasSuffix(k, "Id") && k != "originalId" {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}

	return record.ID()
}

// JunctionLineageKey builds the schema-defined composite identity for a
// junction record: "<fk1>=<id1>:<fk2>=<id2>:..." over the non-branch
// relation fields, sorted by field name so the same two endpoints always produce the
// same lineage key regardless of which branch clone authored the row.
//
// The fk fields read here (record.String(field)) are plain id strings, not
// model.Record values, so BaseID cannot be re-applied to them at this
// point — there is no originalId to inspect on a bare string. The junction
// manager (internal/domain/junction) is responsible for normalizing each fk
// value to the referenced entity's base id (via BaseID) at write time,
// before it ever reaches a stored record, which is what lets this function
// treat the fk value as already-normalized.
func JunctionLineageKey(schema model.Schema, record model.Record) string {
	var parts []string

	for field, mapping := range schema.FieldMappings {
		if mapping.Type != "relation" || mapping.Target == "branch" {
			continue
		}

		parts = append(parts, field+"="+record.String(field))
	}

	// Deterministic ordering: field name is the natural sort key since map
	// iteration order is not guaranteed.
	sortStrings(parts)

	return strings.Join(parts, ":")
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// LineageOf returns the lineage grouping key for a record: the junction
// lineage key for junction schemas, the base id otherwise.
func LineageOf(schema model.Schema, record model.Record) string {
	if schema.IsJunction() {
		return JunctionLineageKey(schema, record)
	}

	return BaseID(record)
}

// TieBreak orders two candidate rows of the same lineage: by updatedAt
// desc, then createdAt desc, then id asc. It reports whether a should be
// preferred over b.
func TieBreak(a, b model.Record) bool {
	if ua, ub := a.UpdatedAt(), b.UpdatedAt(); !ua.Equal(ub) {
		return ua.After(ub)
	}

	if ca, cb := a.CreatedAt(), b.CreatedAt(); !ca.Equal(cb) {
		return ca.After(cb)
	}

	return a.ID() < b.ID()
}

// BranchScore ranks a record's branch against the caller's branch context:
// 3 for the current branch, 2 for the default branch, 1 otherwise
// (including records with no branchId at all, which are always eligible).
func BranchScore(record model.Record, ctx model.BranchContext) int {
	branchID := record.BranchID()

	switch {
	case branchID == ctx.CurrentBranchID:
		return 3
	case branchID == ctx.DefaultBranchID:
		return 2
	default:
		return 1
	}
}

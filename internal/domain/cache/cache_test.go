package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_ContainsResourceBranchPatternAsSubstring(t *testing.T) {
	fp := Fingerprint("node", "node.list", "{}", "feat-1")
	pattern := ResourceBranchPattern("node", "feat-1")

	assert.True(t, strings.Contains(fp, pattern), "every fingerprint for a resource/branch must contain that pair's invalidation pattern")
}

func TestFingerprint_DoesNotMatchOtherBranch(t *testing.T) {
	fp := Fingerprint("node", "node.list", "{}", "main")
	pattern := ResourceBranchPattern("node", "feat-1")

	assert.False(t, strings.Contains(fp, pattern))
}

func TestFingerprint_DoesNotMatchUnrelatedResourceWithSamePrefix(t *testing.T) {
	fp := Fingerprint("nodeProcess", "nodeProcess.list", "{}", "main")
	pattern := ResourceBranchPattern("node", "main")

	assert.False(t, strings.Contains(fp, pattern), "the @branchId boundary must stop a resource-name prefix collision")
}

package model

// BranchContext carries the branch identity required for any branch-scoped
// read or write. Must be present for any branch-scoped write.
type BranchContext struct {
	CurrentBranchID string
	DefaultBranchID string
	TenantID        string
	UserID          string
}

// IsDefault reports whether the caller is currently on the default branch,
// in which case no overlay reasoning is needed.
func (b BranchContext) IsDefault() bool {
	return b.CurrentBranchID == b.DefaultBranchID
}

// RequestContext is the immutable bundle of ambient state threaded through
// every dispatch, read and write call, replacing the mutable globals a
// string-action dispatcher would otherwise reach for.
type RequestContext struct {
	Branch            BranchContext
	Options           Options
	NavigationContext map[string]any
	SessionID         string
	RequestID         string

	// ProcessingJunctions is the recursion-guard token: set while the
	// Junction Auto-Manager is driving a junction write on behalf of a
	// parent action, so the dispatcher can refuse a call back into that
	// same parent action.
	ProcessingJunctions bool
	ParentAction        string
}

// Options mirrors the option bag the dispatcher accepts per call.
type Options struct {
	SkipCache         bool
	NavigationContext map[string]any
	Filters           map[string]any
	Sort              *SortSpec
	Limit             int
	Offset            int
	BatchID           string
	Reason            string
	Description       string
	Tags              []string
	Timeout           int // milliseconds, 0 = no explicit timeout
}

// SortSpec is the {field, dir} sort option applied after overlay selection.
type SortSpec struct {
	Field string
	Dir   string // "asc" | "desc"
}

// WithParent returns a copy of ctx carrying the recursion guard token for a
// junction write issued on behalf of parentAction.
func (c RequestContext) WithParent(parentAction string) RequestContext {
	c.ProcessingJunctions = true
	c.ParentAction = parentAction

	return c
}

// WithOptions returns a copy of ctx carrying opts as both the ambient
// Options and the NavigationContext seed, used when a raw dispatch call
// supplies an options bag separately from the context it was built from.
func (c RequestContext) WithOptions(opts Options) RequestContext {
	c.Options = opts
	if opts.NavigationContext != nil {
		c.NavigationContext = opts.NavigationContext
	}

	return c
}

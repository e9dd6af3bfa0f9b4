package namespace

// Problem codes reported by a namespace consistency check
const (
	ProblemCycle          = "cycle"
	ProblemDanglingParent = "dangling_parent"
	ProblemPathDrift      = "path_drift"
	ProblemDuplicateName  = "duplicate_name"
	ProblemUsageDrift     = "usage_drift"
)

// Problem is a single invariant violation found by a check
type Problem struct {
	Code    string `json:"code" yaml:"code"`
	EntryID string `json:"entry_id,omitempty" yaml:"entry_id,omitempty"`
	Detail  string `json:"detail" yaml:"detail"`
}

// CheckReport summarizes the state of one owner's namespace
type CheckReport struct {
	OwnerID       string    `json:"owner_id" yaml:"owner_id"`
	Entries       int       `json:"entries" yaml:"entries"`
	ActiveFiles   int       `json:"active_files" yaml:"active_files"`
	ActiveBytes   int64     `json:"active_bytes" yaml:"active_bytes"`
	LedgerUsed    int64     `json:"ledger_used" yaml:"ledger_used"`
	LedgerHeld    int64     `json:"ledger_held" yaml:"ledger_held"`
	MaxDepth      int       `json:"max_depth" yaml:"max_depth"`
	Problems      []Problem `json:"problems" yaml:"problems"`
	UsageRepaired bool      `json:"usage_repaired,omitempty" yaml:"usage_repaired,omitempty"`
}

// OK reports whether the check found no problems
func (r *CheckReport) OK() bool {
	return len(r.Problems) == 0
}

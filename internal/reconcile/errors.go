package reconcile

import "fmt"

// Reconciliation steps reported in StepError.
const (
	StepValidate       = "validate"
	StepUpsertJob      = "upsert_job"
	StepUpsertSellers  = "upsert_sellers"
	StepUpsertProducts = "upsert_products"
	StepLifecycle      = "lifecycle"
	StepCommit         = "commit"
)

// StepError reports which reconciliation step failed. Nothing from the run
// is persisted when it is returned.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

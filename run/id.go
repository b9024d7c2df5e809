package run

import (
	"github.com/google/uuid"

	"github.com/dshills/flowrun/engine"
	"github.com/dshills/flowrun/flow"
)

// CreateRun binds wf to a fresh run, generating runID via uuid when the
// caller omits one (spec.md §6 "run: createRun({runId?})"). eng may be
// shared across many Runs.
func CreateRun(wf *flow.Workflow, eng *engine.Engine, runID, workflowID string) (*Run, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	return New(wf, eng, runID, workflowID)
}

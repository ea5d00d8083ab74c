package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeVideoDispatch   = "video:dispatch"
	TypeLedgerReconcile = "ledger:reconcile"
)

// DispatchPayload names the job to submit. Everything else is read from
// the job row so a retried task always sends current data.
type DispatchPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

func NewDispatchTask(jobID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(DispatchPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVideoDispatch, data), nil
}

// NewReconcileTask checks every wallet against its ledger.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeLedgerReconcile, nil)
}

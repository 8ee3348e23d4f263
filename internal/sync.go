package internal

import "time"

type Action string

func (a Action) String() string {
	return string(a)
}

var (
	ActionUpsert Action = "UPSERT"
	ActionDelete Action = "DELETE"
)

type Result string

func (r Result) String() string {
	return string(r)
}

var (
	ResultOK                  Result = "OK"
	ResultNotFoundThenCreated Result = "NOT_FOUND_THEN_CREATED"
	ResultFailed              Result = "FAILED"
)

// SyncOutcome is the result of one action against one linked account.
type SyncOutcome struct {
	AccountID  string `json:"accountId"`
	Action     Action `json:"action"`
	Result     Result `json:"result"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (o SyncOutcome) Failed() bool {
	return o.Result == ResultFailed
}

// SyncResult aggregates the outcomes of one reconcile. It is stored as the
// event's last sync result.
type SyncResult struct {
	AttemptID  string        `json:"attemptId"`
	EventID    string        `json:"eventId"`
	Action     Action        `json:"action"`
	Revision   int64         `json:"revision"`
	Success    bool          `json:"success"`
	Outcomes   []SyncOutcome `json:"outcomes"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Err returns ErrSyncPartialFailure when some account did not converge.
func (r *SyncResult) Err() error {
	if r == nil || r.Success {
		return nil
	}
	return ErrSyncPartialFailure
}

// FailedAccounts lists the accounts that are out of sync.
func (r *SyncResult) FailedAccounts() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Failed() {
			ids = append(ids, o.AccountID)
		}
	}
	return ids
}

// SyncJob asks for one event to be reconciled. Revision is the event
// revision the job was created for.
type SyncJob struct {
	Event    *Event
	Action   Action
	Revision int64
}

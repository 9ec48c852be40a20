package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres. Custody
// records are the only aggregate that emits events.
type OutboxAggregateType string

const AggregateCustodyRecord OutboxAggregateType = "custody_record"

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateCustodyRecord
}

// OutboxEventType maps to the event_type enum in Postgres. Each value names
// one custody lifecycle transition.
type OutboxEventType string

const (
	EventCustodyRecordCreated   OutboxEventType = "custody_record_created"
	EventCustodyCheckedOut      OutboxEventType = "custody_checked_out"
	EventCustodyReturned        OutboxEventType = "custody_returned"
	EventCustodyReturnInitiated OutboxEventType = "custody_return_initiated"
	EventCustodyCancelled       OutboxEventType = "custody_cancelled"
)

// statusAfter is the record status each event leaves behind.
var statusAfter = map[OutboxEventType]CustodyStatus{
	EventCustodyRecordCreated:   CustodyStatusPending,
	EventCustodyCheckedOut:      CustodyStatusCheckedOut,
	EventCustodyReturned:        CustodyStatusReturned,
	EventCustodyReturnInitiated: CustodyStatusPending,
	EventCustodyCancelled:       CustodyStatusCancelled,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := statusAfter[e]
	return ok
}

// ResultingStatus reports the custody status a record holds once e happened.
func (e OutboxEventType) ResultingStatus() (CustodyStatus, bool) {
	status, ok := statusAfter[e]
	return status, ok
}

// OutboxDLQErrorReason records why the publisher stopped retrying a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

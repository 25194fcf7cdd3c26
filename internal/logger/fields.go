package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tags carried on the context logger from the API edge down to SQL.
const (
	FieldRequestID  = "request_id"
	FieldJobID      = "job_id"
	FieldProposalID = "proposal_id"
	FieldChainJobID = "chain_job_id" // escrow contract job id
	FieldActor      = "actor"        // calling wallet, lowercased
	FieldComponent  = "component"
	FieldTxAction   = "tx_action" // contract function an unsigned tx targets
)

// Per-line measurements, set through Entry.
const (
	FieldDurationMs  = "duration_ms"
	FieldCount       = "count"
	FieldSize        = "size" // bytes
	FieldStatus      = "status"
	FieldCorrections = "corrections"
)

package domain

import (
	"fmt"
	"math/big"
	"time"
)

// ChainStatus is the escrow contract's job status enum as stored on chain.
type ChainStatus uint8

const (
	ChainStatusOpen       ChainStatus = 0
	ChainStatusInProgress ChainStatus = 1
	ChainStatusSubmitted  ChainStatus = 2
	ChainStatusCompleted  ChainStatus = 3
	ChainStatusDisputed   ChainStatus = 4
	ChainStatusCancelled  ChainStatus = 5
	ChainStatusRefunded   ChainStatus = 6
)

// chainToJobStatus is the single mapping between the two status enums.
var chainToJobStatus = map[ChainStatus]JobStatus{
	ChainStatusOpen:       JobStatusOpen,
	ChainStatusInProgress: JobStatusInProgress,
	ChainStatusSubmitted:  JobStatusSubmitted,
	ChainStatusCompleted:  JobStatusCompleted,
	ChainStatusDisputed:   JobStatusDisputed,
	ChainStatusCancelled:  JobStatusCancelled,
	ChainStatusRefunded:   JobStatusRefunded,
}

// JobStatus maps a chain status to the persisted status it corresponds to.
// ok is false for values the contract does not define.
func (s ChainStatus) JobStatus() (JobStatus, bool) {
	st, ok := chainToJobStatus[s]
	return st, ok
}

func (s ChainStatus) String() string {
	if st, ok := s.JobStatus(); ok {
		return string(st)
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// ZeroAddress is the lower-cased hex zero address the contract reports for
// unassigned freelancers.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ChainJob is a point-in-time read of the escrow contract's job record.
type ChainJob struct {
	ID            int64       `json:"id"`
	Client        string      `json:"client"`
	Freelancer    string      `json:"freelancer"`
	AmountWei     *big.Int    `json:"amount_wei"`
	Deadline      time.Time   `json:"deadline"`
	Title         string      `json:"title"`
	IPFSHash      string      `json:"ipfs_hash"`
	Status        ChainStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	FundsReleased bool        `json:"funds_released"`
}

// HasFreelancer reports whether the contract names a non-zero freelancer.
func (c *ChainJob) HasFreelancer() bool {
	f := NormalizeAddress(c.Freelancer)
	return f != "" && f != ZeroAddress
}

// MirrorState classifies the outcome of a mirror read.
type MirrorState string

const (
	MirrorOK          MirrorState = "ok"
	MirrorUnavailable MirrorState = "unavailable"
	MirrorError       MirrorState = "error"
)

// MirrorResult is the typed outcome of reading a job from the contract.
// Job is set only when State is MirrorOK; Err carries the detail otherwise.
type MirrorResult struct {
	State MirrorState
	Job   *ChainJob
	Err   error
}

// MirrorFound wraps a successful read.
func MirrorFound(job *ChainJob) MirrorResult {
	return MirrorResult{State: MirrorOK, Job: job}
}

// MirrorUnavailableResult reports that the chain could not be reached.
func MirrorUnavailableResult(err error) MirrorResult {
	return MirrorResult{State: MirrorUnavailable, Err: err}
}

// MirrorErrorResult reports that the chain answered but the read was unusable.
func MirrorErrorResult(err error) MirrorResult {
	return MirrorResult{State: MirrorError, Err: err}
}

// Mirror returns the job when the read succeeded, nil otherwise.
func (r MirrorResult) Mirror() *ChainJob {
	if r.State != MirrorOK {
		return nil
	}
	return r.Job
}

// TxAction names an escrow contract function that changes state.
type TxAction string

const (
	TxCreateJob    TxAction = "createJob"
	TxAcceptJob    TxAction = "acceptJob"
	TxSubmitWork   TxAction = "submitWork"
	TxApproveWork  TxAction = "approveWork"
	TxCancelJob    TxAction = "cancelJob"
	TxRaiseDispute TxAction = "raiseDispute"
)

// TxArgs carries the call arguments for a TxAction. Only the fields the
// action's ABI signature uses are read.
type TxArgs struct {
	JobID          int64
	Title          string
	IPFSHash       string
	Deadline       time.Time
	DeliverableRef string
	Reason         string
	ValueWei       *big.Int
}

// DefaultGasLimit is used whenever gas estimation fails.
const DefaultGasLimit uint64 = 500000

// TransactionDescriptor is a fully specified but unsigned transaction.
type TransactionDescriptor struct {
	Action      TxAction `json:"action"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Data        string   `json:"data"`
	Value       string   `json:"value"`
	Gas         uint64   `json:"gas"`
	GasPrice    string   `json:"gas_price,omitempty"`
	Nonce       uint64   `json:"nonce"`
	ChainID     int64    `json:"chain_id"`
	GasEstimate bool     `json:"gas_estimated"`
}

// TxState is the lifecycle of a submitted transaction.
type TxState string

const (
	TxPending TxState = "pending"
	TxSuccess TxState = "success"
	TxFailed  TxState = "failed"
)

// TransactionStatus reports what the chain knows about a transaction hash.
type TransactionStatus struct {
	TxHash      string  `json:"tx_hash"`
	Status      TxState `json:"status"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
	GasUsed     *uint64 `json:"gas_used,omitempty"`
}

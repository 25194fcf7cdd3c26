package service

import (
	"context"
	"fmt"

	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
)

// NeededAction tells the caller which step of the payment release remains.
type NeededAction string

const (
	ActionNone              NeededAction = "none"
	ActionWaitForOtherParty NeededAction = "wait_for_other_party"
	ActionAcceptJob         NeededAction = "accept_job"
	ActionSubmitWork        NeededAction = "submit_work"
	ActionApproveWork       NeededAction = "approve_work"
	ActionRetryRelease      NeededAction = "retry_release"
	ActionManualResolution  NeededAction = "manual_resolution"
)

// ReleaseOutcome is what the payment-release protocol decided for one job.
// Error carries soft failures; the persisted completion stands regardless.
type ReleaseOutcome struct {
	Transaction          *domain.TransactionDescriptor
	NeededAction         NeededAction
	NeedsAccept          bool
	NeedsSubmit          bool
	FundsAlreadyReleased bool
	Inconsistent         bool
	Error                string
}

// PaymentRelease works out the next contract call needed to release escrowed
// funds for a job both parties agreed is complete. It never writes the store.
type PaymentRelease struct {
	chain  ChainGateway
	logger *logger.Logger
}

// NewPaymentRelease creates a PaymentRelease over the chain gateway.
func NewPaymentRelease(chain ChainGateway, log *logger.Logger) *PaymentRelease {
	return &PaymentRelease{chain: chain, logger: log}
}

func (p *PaymentRelease) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// Run reads the chain mirror and prepares whichever signature the contract
// needs next.
// Parameters:
//   - ctx: request context.
//   - job: the completed job, as committed.
//   - approver: wallet that signs approveWork (the client, or the escrow agent).
// Returns:
//   - ReleaseOutcome: chain and build failures are reported in Error.
func (p *PaymentRelease) Run(ctx context.Context, job *domain.Job, approver string) (out ReleaseOutcome) {
	defer func() {
		releases.WithLabelValues(string(out.NeededAction)).Inc()
	}()

	if !job.OnChain() || p.chain == nil {
		out.NeededAction = ActionNone
		return out
	}
	chainID := *job.BlockchainJobID
	ctx = logger.SetChainJobID(ctx, chainID)

	res := p.chain.JobMirror(ctx, chainID)
	mirrorReads.WithLabelValues(string(res.State)).Inc()
	mirror := res.Mirror()
	if mirror == nil {
		p.log(ctx).WithField(logger.FieldStatus, string(res.State)).WithError(res.Err).Warn("Cannot read chain job for payment release")
		out.NeededAction = ActionRetryRelease
		out.Error = fmt.Sprintf("blockchain job %d could not be read: %v", chainID, res.Err)
		return out
	}

	switch mirror.Status {
	case domain.ChainStatusSubmitted, domain.ChainStatusCompleted:
		if mirror.FundsReleased {
			out.FundsAlreadyReleased = true
			out.NeededAction = ActionNone
			return out
		}
		if mirror.Status == domain.ChainStatusCompleted {
			out.Inconsistent = true
			out.NeededAction = ActionManualResolution
			out.Error = fmt.Sprintf("blockchain job %d is completed but funds were not released", chainID)
			return out
		}
		out.NeededAction = ActionApproveWork
		p.build(ctx, &out, domain.TxApproveWork, domain.TxArgs{JobID: chainID}, approver)

	case domain.ChainStatusInProgress:
		out.NeedsSubmit = true
		out.NeededAction = ActionSubmitWork
		p.build(ctx, &out, domain.TxSubmitWork, domain.TxArgs{
			JobID:          chainID,
			DeliverableRef: DeliverableRef(job.ID, job.DeliverableURL),
		}, job.Freelancer())

	case domain.ChainStatusOpen:
		out.NeedsAccept = true
		out.NeedsSubmit = true
		out.NeededAction = ActionAcceptJob
		p.build(ctx, &out, domain.TxAcceptJob, domain.TxArgs{JobID: chainID}, job.Freelancer())

	default:
		p.log(ctx).WithField("chain_status", mirror.Status.String()).Error("Job completed locally but chain job is in a terminal side state")
		out.Inconsistent = true
		out.NeededAction = ActionManualResolution
		out.Error = fmt.Sprintf("blockchain job %d is %s; funds cannot be released automatically", chainID, mirror.Status)
	}
	return out
}

func (p *PaymentRelease) build(ctx context.Context, out *ReleaseOutcome, action domain.TxAction, args domain.TxArgs, from string) {
	tx, err := p.chain.BuildTransaction(ctx, action, args, from)
	if err != nil {
		p.log(ctx).WithField(logger.FieldTxAction, string(action)).WithError(err).Warn("Failed to build release transaction")
		out.Error = fmt.Sprintf("failed to build %s transaction: %v", action, err)
		return
	}
	out.Transaction = tx
}

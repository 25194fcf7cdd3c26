package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
)

var txBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gigescrow_tx_builds_total",
	Help: "Unsigned transactions built, by contract action and outcome.",
}, []string{"action", "outcome"})

const defaultBuildTimeout = 15 * time.Second

// Config holds configuration for the escrow contract gateway.
type Config struct {
	RPC             RPCConfig
	ContractAddress string
	ChainID         int64
	GasMultiplier   float64
	BuildTimeout    time.Duration
}

// Gateway reads the escrow contract and prepares unsigned transactions for it.
// It never signs or submits anything.
type Gateway struct {
	node          *Node
	contract      common.Address
	chainID       int64
	gasMultiplier float64
	buildTimeout  time.Duration
	enabled       bool
}

// NewGateway creates a Gateway. With no RPC URL or contract address every
// read reports the chain as unavailable and every build fails.
func NewGateway(cfg Config) (*Gateway, error) {
	multiplier := cfg.GasMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	buildTimeout := cfg.BuildTimeout
	if buildTimeout <= 0 {
		buildTimeout = defaultBuildTimeout
	}
	g := &Gateway{
		contract:      common.HexToAddress(cfg.ContractAddress),
		chainID:       cfg.ChainID,
		gasMultiplier: multiplier,
		buildTimeout:  buildTimeout,
	}
	if cfg.RPC.URL == "" || !common.IsHexAddress(cfg.ContractAddress) {
		return g, nil
	}
	node, err := DialNode(cfg.RPC)
	if err != nil {
		return nil, err
	}
	g.node = node
	g.enabled = true
	return g, nil
}

// Close releases the node connection.
func (g *Gateway) Close() error {
	if g.node != nil {
		g.node.Close()
	}
	return nil
}

// Enabled reports whether the gateway has a node and contract to talk to.
func (g *Gateway) Enabled() bool {
	return g.enabled
}

// ContractAddress returns the lower-cased escrow contract address.
func (g *Gateway) ContractAddress() string {
	return domain.NormalizeAddress(g.contract.Hex())
}

// JobMirror reads the contract's record of a job.
// Parameters:
//   - ctx: context bounding the read.
//   - id: contract job ID.
// Returns:
//   - domain.MirrorResult: MirrorOK with the job, MirrorUnavailable when the
//     node cannot be reached, MirrorError when the answer is unusable.
func (g *Gateway) JobMirror(ctx context.Context, id int64) domain.MirrorResult {
	if !g.enabled {
		return domain.MirrorUnavailableResult(fmt.Errorf("%w: gateway not configured", domain.ErrChainUnavailable))
	}

	data, err := escrowABI.Pack("getJob", big.NewInt(id))
	if err != nil {
		return domain.MirrorErrorResult(err)
	}

	out, err := g.node.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data})
	if err != nil {
		if errors.Is(err, errTransport) {
			return domain.MirrorUnavailableResult(fmt.Errorf("%w: %v", domain.ErrChainUnavailable, err))
		}
		return domain.MirrorErrorResult(err)
	}
	if len(out) == 0 {
		return domain.MirrorErrorResult(fmt.Errorf("getJob(%d) returned no data", id))
	}

	job, err := decodeJob(out)
	if err != nil {
		return domain.MirrorErrorResult(fmt.Errorf("decode getJob(%d): %w", id, err))
	}
	if job.ID == 0 && job.Client == domain.ZeroAddress {
		return domain.MirrorErrorResult(fmt.Errorf("job %d does not exist on chain", id))
	}
	if _, ok := job.Status.JobStatus(); !ok {
		return domain.MirrorErrorResult(fmt.Errorf("job %d has unknown chain status %s", id, job.Status))
	}
	return domain.MirrorFound(job)
}

// BuildTransaction prepares an unsigned call of action for from to sign.
// The build runs detached from ctx's cancellation, bounded by its own timeout.
// Parameters:
//   - ctx: parent context carrying log fields.
//   - action: contract function.
//   - args: call arguments.
//   - from: wallet that will sign.
// Returns:
//   - *domain.TransactionDescriptor: the unsigned transaction.
//   - error: wraps domain.ErrTransactionBuild or domain.ErrChainUnavailable.
func (g *Gateway) BuildTransaction(ctx context.Context, action domain.TxAction, args domain.TxArgs, from string) (desc *domain.TransactionDescriptor, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		txBuilds.WithLabelValues(string(action), outcome).Inc()
	}()

	if !g.enabled {
		return nil, fmt.Errorf("%w: gateway not configured", domain.ErrChainUnavailable)
	}
	if !common.IsHexAddress(from) {
		return nil, fmt.Errorf("%w: invalid sender address %q", domain.ErrTransactionBuild, from)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.buildTimeout)
	defer cancel()
	ctx = logger.WithField(ctx, logger.FieldTxAction, string(action))

	data, err := packCall(action, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransactionBuild, err)
	}

	sender := common.HexToAddress(from)
	value := new(big.Int)
	if action == domain.TxCreateJob && args.ValueWei != nil {
		value.Set(args.ValueWei)
	}

	nonce, err := g.node.PendingNonceAt(ctx, sender)
	if err != nil {
		return nil, g.buildErr("nonce", err)
	}

	gasPrice, err := g.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, g.buildErr("gas price", err)
	}

	chainID := g.chainID
	if chainID == 0 {
		id, err := g.node.ChainID(ctx)
		if err != nil {
			return nil, g.buildErr("chain id", err)
		}
		chainID = id.Int64()
	}

	gas, estimated := g.estimateGas(ctx, ethereum.CallMsg{
		From:  sender,
		To:    &g.contract,
		Data:  data,
		Value: value,
	})

	return &domain.TransactionDescriptor{
		Action:      action,
		From:        domain.NormalizeAddress(sender.Hex()),
		To:          g.ContractAddress(),
		Data:        hexutil.Encode(data),
		Value:       value.String(),
		Gas:         gas,
		GasPrice:    gasPrice.String(),
		Nonce:       nonce,
		ChainID:     chainID,
		GasEstimate: estimated,
	}, nil
}

// estimateGas asks the node for a gas estimate scaled by the multiplier and
// falls back to DefaultGasLimit when estimation fails for any reason.
func (g *Gateway) estimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, bool) {
	est, err := g.node.EstimateGas(ctx, call)
	if err != nil || est == 0 {
		logger.CtxWarn(ctx, "Gas estimation failed, using default %d: %v", domain.DefaultGasLimit, err)
		return domain.DefaultGasLimit, false
	}
	return uint64(math.Ceil(float64(est) * g.gasMultiplier)), true
}

func (g *Gateway) buildErr(step string, err error) error {
	if errors.Is(err, errTransport) {
		return fmt.Errorf("%w: %s: %v", domain.ErrChainUnavailable, step, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrTransactionBuild, step, err)
}

// TransactionStatus reports whether a transaction is pending, succeeded or failed.
func (g *Gateway) TransactionStatus(ctx context.Context, txHash string) (*domain.TransactionStatus, error) {
	rcpt, err := g.receipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	status := &domain.TransactionStatus{TxHash: txHash, Status: domain.TxPending}
	if rcpt == nil {
		return status, nil
	}
	gasUsed := rcpt.GasUsed
	if rcpt.BlockNumber != nil {
		block := rcpt.BlockNumber.Uint64()
		status.BlockNumber = &block
	}
	status.GasUsed = &gasUsed
	if rcpt.Status == types.ReceiptStatusSuccessful {
		status.Status = domain.TxSuccess
	} else {
		status.Status = domain.TxFailed
	}
	return status, nil
}

// CreatedJobID extracts the contract job ID from a mined createJob transaction.
func (g *Gateway) CreatedJobID(ctx context.Context, txHash string) (int64, error) {
	rcpt, err := g.receipt(ctx, txHash)
	if err != nil {
		return 0, err
	}
	if rcpt == nil {
		return 0, fmt.Errorf("%w: transaction %s is still pending", domain.ErrInvalidState, txHash)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return 0, fmt.Errorf("%w: transaction %s failed", domain.ErrInvalidState, txHash)
	}
	for _, l := range rcpt.Logs {
		if l.Address != g.contract {
			continue
		}
		if id, ok := jobCreatedID(l.Topics); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: no JobCreated event in %s", domain.ErrNotFound, txHash)
}

// receipt returns nil while the transaction is pending.
func (g *Gateway) receipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	if !g.enabled {
		return nil, fmt.Errorf("%w: gateway not configured", domain.ErrChainUnavailable)
	}
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return nil, fmt.Errorf("%w: malformed transaction hash %q", domain.ErrInvalidInput, txHash)
	}

	rcpt, err := g.node.TransactionReceipt(ctx, common.BytesToHash(raw))
	switch {
	case errors.Is(err, ethereum.NotFound):
		return nil, nil
	case errors.Is(err, errTransport):
		return nil, fmt.Errorf("%w: %v", domain.ErrChainUnavailable, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrTransactionBuild, err)
	}
	return rcpt, nil
}

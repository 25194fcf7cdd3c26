package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "gigescrow_chain_rpc_duration_seconds",
	Help:    "Latency of JSON-RPC calls to the chain node.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "outcome"})

// errTransport marks failures to reach the node at all, as opposed to the
// node answering with an error.
var errTransport = errors.New("rpc transport failure")

// RPCConfig holds configuration for the node connection.
type RPCConfig struct {
	URL       string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// Node is an ethclient whose every call is bounded by a timeout, throttled,
// and timed.
type Node struct {
	eth     *ethclient.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// DialNode connects to the node at cfg.URL. HTTP endpoints are dialed lazily,
// so an unreachable node only fails the calls. A zero RateLimit disables
// throttling.
func DialNode(cfg RPCConfig) (*Node, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		GetClient()
	client, err := rpc.DialOptions(context.Background(), cfg.URL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial chain node: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Node{
		eth:     ethclient.NewClient(client),
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Close releases the underlying RPC client.
func (n *Node) Close() {
	n.eth.Close()
}

// do runs one node call under the per-call timeout and the rate limit.
// Failures to reach the node are wrapped in errTransport.
func (n *Node) do(ctx context.Context, method string, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	start := time.Now()

	err := n.limiter.Wait(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %s throttled: %w", errTransport, method, err)
	} else if err = call(ctx); err != nil && unreachable(err) {
		err = fmt.Errorf("%w: %s: %w", errTransport, method, err)
	}

	outcome := "ok"
	switch {
	case errors.Is(err, errTransport):
		outcome = "unavailable"
	case err != nil && !errors.Is(err, ethereum.NotFound):
		outcome = "error"
	}
	rpcDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
	return err
}

// unreachable reports whether err means the node was never asked, or never
// answered, rather than answering with a JSON-RPC error.
func unreachable(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// CallContract executes a read-only call against the latest block.
func (n *Node) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := n.do(ctx, "eth_call", func(ctx context.Context) (err error) {
		out, err = n.eth.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}

// PendingNonceAt returns the next nonce of account, counting pending transactions.
func (n *Node) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := n.do(ctx, "eth_getTransactionCount", func(ctx context.Context) (err error) {
		nonce, err = n.eth.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SuggestGasPrice returns the node's legacy gas price.
func (n *Node) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := n.do(ctx, "eth_gasPrice", func(ctx context.Context) (err error) {
		price, err = n.eth.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// ChainID returns the node's chain id.
func (n *Node) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := n.do(ctx, "eth_chainId", func(ctx context.Context) (err error) {
		id, err = n.eth.ChainID(ctx)
		return err
	})
	return id, err
}

// EstimateGas asks the node how much gas msg needs.
func (n *Node) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := n.do(ctx, "eth_estimateGas", func(ctx context.Context) (err error) {
		gas, err = n.eth.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound while it is pending or unknown.
func (n *Node) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var rcpt *types.Receipt
	err := n.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context) (err error) {
		rcpt, err = n.eth.TransactionReceipt(ctx, hash)
		return err
	})
	return rcpt, err
}

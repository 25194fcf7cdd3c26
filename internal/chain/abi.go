package chain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/timmy/gigescrow/internal/domain"
)

// escrowABIJSON is the subset of the FreelanceEscrow contract interface this
// service calls or decodes.
const escrowABIJSON = `[
  {"type":"function","name":"createJob","stateMutability":"payable","outputs":[],
   "inputs":[{"name":"_title","type":"string"},{"name":"_ipfsHash","type":"string"},{"name":"_deadline","type":"uint256"}]},
  {"type":"function","name":"acceptJob","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"_jobId","type":"uint256"}]},
  {"type":"function","name":"submitWork","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"_jobId","type":"uint256"},{"name":"_deliverableHash","type":"string"}]},
  {"type":"function","name":"approveWork","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"_jobId","type":"uint256"}]},
  {"type":"function","name":"cancelJob","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"_jobId","type":"uint256"}]},
  {"type":"function","name":"raiseDispute","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"_jobId","type":"uint256"},{"name":"_reason","type":"string"}]},
  {"type":"function","name":"getJob","stateMutability":"view",
   "inputs":[{"name":"_jobId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","internalType":"struct FreelanceEscrow.Job","components":[
     {"name":"id","type":"uint256"},
     {"name":"client","type":"address"},
     {"name":"freelancer","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"deadline","type":"uint256"},
     {"name":"title","type":"string"},
     {"name":"ipfsHash","type":"string"},
     {"name":"status","type":"uint8"},
     {"name":"createdAt","type":"uint256"},
     {"name":"completedAt","type":"uint256"},
     {"name":"fundsReleased","type":"bool"}]}]},
  {"type":"event","name":"JobCreated","anonymous":false,
   "inputs":[{"indexed":true,"name":"jobId","type":"uint256"},{"indexed":true,"name":"client","type":"address"},
             {"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"deadline","type":"uint256"}]}
]`

var escrowABI = mustParseABI(escrowABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid escrow ABI: %v", err))
	}
	return parsed
}

// onchainJob mirrors the getJob tuple; field names follow the ABI component names.
type onchainJob struct {
	Id            *big.Int
	Client        common.Address
	Freelancer    common.Address
	Amount        *big.Int
	Deadline      *big.Int
	Title         string
	IpfsHash      string
	Status        uint8
	CreatedAt     *big.Int
	CompletedAt   *big.Int
	FundsReleased bool
}

// packCall ABI-encodes the call data for action.
func packCall(action domain.TxAction, args domain.TxArgs) ([]byte, error) {
	jobID := big.NewInt(args.JobID)
	switch action {
	case domain.TxCreateJob:
		if args.Title == "" {
			return nil, fmt.Errorf("%w: createJob needs a title", domain.ErrInvalidInput)
		}
		return escrowABI.Pack(string(action), args.Title, args.IPFSHash, big.NewInt(args.Deadline.Unix()))
	case domain.TxAcceptJob, domain.TxApproveWork, domain.TxCancelJob:
		return escrowABI.Pack(string(action), jobID)
	case domain.TxSubmitWork:
		return escrowABI.Pack(string(action), jobID, args.DeliverableRef)
	case domain.TxRaiseDispute:
		return escrowABI.Pack(string(action), jobID, args.Reason)
	}
	return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)
}

// decodeJob unpacks getJob return data into a ChainJob.
func decodeJob(data []byte) (*domain.ChainJob, error) {
	out, err := escrowABI.Unpack("getJob", data)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getJob returned %d values", len(out))
	}
	raw := *abi.ConvertType(out[0], new(onchainJob)).(*onchainJob)

	job := &domain.ChainJob{
		ID:            raw.Id.Int64(),
		Client:        domain.NormalizeAddress(raw.Client.Hex()),
		Freelancer:    domain.NormalizeAddress(raw.Freelancer.Hex()),
		AmountWei:     raw.Amount,
		Deadline:      unixTime(raw.Deadline),
		Title:         raw.Title,
		IPFSHash:      raw.IpfsHash,
		Status:        domain.ChainStatus(raw.Status),
		CreatedAt:     unixTime(raw.CreatedAt),
		FundsReleased: raw.FundsReleased,
	}
	if raw.CompletedAt != nil && raw.CompletedAt.Sign() > 0 {
		t := unixTime(raw.CompletedAt)
		job.CompletedAt = &t
	}
	return job, nil
}

func unixTime(v *big.Int) time.Time {
	if v == nil {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// jobCreatedID extracts the jobId indexed topic of a JobCreated log.
// ok is false when the topics do not belong to that event.
func jobCreatedID(topics []common.Hash) (int64, bool) {
	if len(topics) < 2 || topics[0] != escrowABI.Events["JobCreated"].ID {
		return 0, false
	}
	return new(big.Int).SetBytes(topics[1].Bytes()).Int64(), true
}

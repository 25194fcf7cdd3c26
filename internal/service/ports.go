package service

import (
	"context"

	"github.com/timmy/gigescrow/internal/domain"
)

// ChainGateway is the escrow contract as the services see it. Reads never
// fail: unreachable or unusable answers come back as a typed MirrorResult.
type ChainGateway interface {
	JobMirror(ctx context.Context, id int64) domain.MirrorResult
	BuildTransaction(ctx context.Context, action domain.TxAction, args domain.TxArgs, from string) (*domain.TransactionDescriptor, error)
	TransactionStatus(ctx context.Context, txHash string) (*domain.TransactionStatus, error)
	CreatedJobID(ctx context.Context, txHash string) (int64, error)
}

// SearchIndex keeps a full-text copy of open jobs.
type SearchIndex interface {
	Index(ctx context.Context, job *domain.Job) error
	Remove(ctx context.Context, jobID string) error
	Search(ctx context.Context, filter domain.SearchFilter) ([]string, error)
}

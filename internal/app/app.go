// Package app wires configuration into the store, the chain gateway and the
// services shared by the API server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/timmy/gigescrow/internal/api"
	"github.com/timmy/gigescrow/internal/chain"
	"github.com/timmy/gigescrow/internal/config"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
	"github.com/timmy/gigescrow/internal/service"
	"github.com/timmy/gigescrow/internal/storage"
)

// App holds the wired dependencies. Close releases them.
type App struct {
	Config     *config.Config
	Gateway    *chain.Gateway
	Reconciler *service.ReconcileService
	Services   *api.Services

	closers []func() error
}

// New connects the database, object storage and search index named by cfg
// and builds every service over them. Optional backends that are not
// configured are left out; the services degrade without them.
// Parameters:
//   - ctx: context for startup calls (bucket and collection checks).
//   - cfg: loaded configuration.
//   - log: base logger.
// Returns:
//   - *App: wired application.
//   - error: non-nil when a configured backend cannot be initialized.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	store := repository.NewStore(db)

	a.Gateway, err = chain.NewGateway(chain.Config{
		RPC: chain.RPCConfig{
			URL:       cfg.Chain.RPCURL,
			Timeout:   cfg.Chain.RPCTimeout,
			RateLimit: cfg.Chain.RateLimit,
			RateBurst: cfg.Chain.RateBurst,
		},
		ContractAddress: cfg.Chain.ContractAddress,
		ChainID:         cfg.Chain.ChainID,
		GasMultiplier:   cfg.Chain.GasMultiplier,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize chain gateway: %w", err)
	}
	a.closers = append(a.closers, a.Gateway.Close)
	if a.Gateway.Enabled() {
		log.WithFields(logger.Fields{
			"chain":    cfg.Chain.ChainName,
			"chain_id": cfg.Chain.ChainID,
			"contract": a.Gateway.ContractAddress(),
		}).Info("Escrow contract gateway enabled")
	} else {
		log.Warn("Escrow contract gateway not configured; jobs are served from the database only")
	}

	objects, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if b, ok := objects.(interface{ EnsureBucket(context.Context) error }); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}

	var index service.SearchIndex
	if cfg.Search.Enabled {
		jobIndex, err := repository.NewJobIndex(&repository.JobIndexConfig{
			Host:       cfg.Search.Host,
			Port:       cfg.Search.Port,
			Collection: cfg.Search.Collection,
			APIKey:     cfg.Search.APIKey,
			UseTLS:     cfg.Search.UseTLS,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize search index: %w", err)
		}
		a.closers = append(a.closers, jobIndex.Close)
		if err := jobIndex.EnsureCollection(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure search collection: %w", err)
		}
		index = jobIndex
	}

	reconciler := service.NewReconcileService(store, a.Gateway, log, cfg.Reconcile.Concurrency)
	a.Reconciler = reconciler
	notifier := service.NewNotificationService(store, log)
	release := service.NewPaymentRelease(a.Gateway, log)
	acceptance := service.NewAcceptanceService(store, a.Gateway, notifier, log)

	a.Services = &api.Services{
		Store: store,
		Jobs: service.NewJobService(service.JobServiceConfig{
			Store:      store,
			Chain:      a.Gateway,
			Reconciler: reconciler,
			Notifier:   notifier,
			Index:      index,
			Storage:    objects,
			MaxUpload:  cfg.Storage.MaxUpload,
			Logger:     log,
		}),
		Confirmation:  service.NewConfirmationService(store, release, notifier, log),
		Acceptance:    acceptance,
		Escrow:        service.NewEscrowService(store, a.Gateway, reconciler, release, notifier, log),
		Proposals:     service.NewProposalService(store, notifier, log),
		Users:         service.NewUserService(store, log),
		Notifications: notifier,
		SavedJobs:     service.NewSavedJobService(store, reconciler),
		Chat:          service.NewChatService(store, objects, notifier, cfg.Storage.MaxUpload, log),
		Sweep: service.NewSweepService(store, reconciler, acceptance, log, &service.SweepConfig{
			Workers:   cfg.Reconcile.Concurrency,
			BatchSize: cfg.Reconcile.ListLimit,
		}),
	}
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

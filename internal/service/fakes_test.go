package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gigescrow/internal/config"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
)

const (
	clientAddr     = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	freelancerAddr = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
	otherAddr      = "0x90f79bf6eb2c4f870365e785982e1f101e93b906"
	escrowAddr     = "0x15d34aaf54267db7d7c367839aaf71a00a2c6a65"
)

// fakeChain is an in-memory ChainGateway. Jobs without a configured mirror
// read as unavailable.
type fakeChain struct {
	mu       sync.Mutex
	mirrors  map[int64]domain.MirrorResult
	buildErr error
	builds   []builtTx
	reads    int
	created  map[string]int64
	statuses map[string]*domain.TransactionStatus
}

type builtTx struct {
	Action domain.TxAction
	Args   domain.TxArgs
	From   string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		mirrors:  map[int64]domain.MirrorResult{},
		created:  map[string]int64{},
		statuses: map[string]*domain.TransactionStatus{},
	}
}

func (f *fakeChain) setMirror(job *domain.ChainJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrors[job.ID] = domain.MirrorFound(job)
}

func (f *fakeChain) setResult(id int64, res domain.MirrorResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrors[id] = res
}

func (f *fakeChain) failBuilds(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildErr = err
}

func (f *fakeChain) built() []builtTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]builtTx(nil), f.builds...)
}

func (f *fakeChain) mirrorReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeChain) JobMirror(_ context.Context, id int64) domain.MirrorResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if res, ok := f.mirrors[id]; ok {
		return res
	}
	return domain.MirrorUnavailableResult(fmt.Errorf("%w: no node", domain.ErrChainUnavailable))
}

func (f *fakeChain) BuildTransaction(_ context.Context, action domain.TxAction, args domain.TxArgs, from string) (*domain.TransactionDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	f.builds = append(f.builds, builtTx{Action: action, Args: args, From: domain.NormalizeAddress(from)})
	value := "0"
	if args.ValueWei != nil {
		value = args.ValueWei.String()
	}
	return &domain.TransactionDescriptor{
		Action:  action,
		From:    domain.NormalizeAddress(from),
		To:      "0x5fbdb2315678afecb367f032d93f642f64180aa3",
		Data:    "0x",
		Value:   value,
		Gas:     domain.DefaultGasLimit,
		Nonce:   uint64(len(f.builds)),
		ChainID: 31337,
	}, nil
}

func (f *fakeChain) TransactionStatus(_ context.Context, txHash string) (*domain.TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.statuses[txHash]; ok {
		return st, nil
	}
	return &domain.TransactionStatus{TxHash: txHash, Status: domain.TxPending}, nil
}

func (f *fakeChain) CreatedJobID(_ context.Context, txHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.created[txHash]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: no JobCreated event in %s", domain.ErrNotFound, txHash)
}

var errBuild = errors.New("execution reverted")

// harness wires every service over one sqlite store and one fake chain.
type harness struct {
	store        *repository.Store
	chain        *fakeChain
	reconciler   *ReconcileService
	notifier     *NotificationService
	confirmation *ConfirmationService
	acceptance   *AcceptanceService
	jobs         *JobService
	escrow       *EscrowService
	proposals    *ProposalService
	users        *UserService
	saved        *SavedJobService
	chat         *ChatService
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns: 2,
		MaxOpenConns: 4,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewStore(db)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.GetDefault()
	h := &harness{store: newTestStore(t), chain: newFakeChain()}
	h.reconciler = NewReconcileService(h.store, h.chain, log, 4)
	h.notifier = NewNotificationService(h.store, log)
	release := NewPaymentRelease(h.chain, log)
	h.confirmation = NewConfirmationService(h.store, release, h.notifier, log)
	h.acceptance = NewAcceptanceService(h.store, h.chain, h.notifier, log)
	h.jobs = NewJobService(JobServiceConfig{
		Store:      h.store,
		Chain:      h.chain,
		Reconciler: h.reconciler,
		Notifier:   h.notifier,
		Storage:    newMemStorage(),
		MaxUpload:  1 << 20,
		Logger:     log,
	})
	h.escrow = NewEscrowService(h.store, h.chain, h.reconciler, release, h.notifier, log)
	h.proposals = NewProposalService(h.store, h.notifier, log)
	h.users = NewUserService(h.store, log)
	h.saved = NewSavedJobService(h.store, h.reconciler)
	h.chat = NewChatService(h.store, newMemStorage(), h.notifier, 1<<20, log)
	return h
}

// seedJob stores a job owned by clientAddr after applying the options.
func (h *harness) seedJob(t *testing.T, opts ...func(*domain.Job)) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:             uuid.New().String(),
		ClientAddress:  clientAddr,
		Title:          "Logo design",
		Description:    "Vector logo for a coffee shop",
		Category:       "design",
		SkillsRequired: domain.StringArray{"illustrator"},
		Budget:         1.5,
		Deadline:       time.Now().Add(14 * 24 * time.Hour).UTC(),
		Status:         domain.JobStatusOpen,
	}
	for _, opt := range opts {
		opt(job)
	}
	require.NoError(t, h.store.Jobs.Create(context.Background(), job))
	return job
}

func (h *harness) reload(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := h.store.Jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (h *harness) notifications(t *testing.T, addr string) []domain.Notification {
	t.Helper()
	list, err := h.store.Notifications.List(context.Background(), addr, false, 100)
	require.NoError(t, err)
	return list
}

func withFreelancer(addr string) func(*domain.Job) {
	return func(j *domain.Job) { j.SetFreelancer(addr) }
}

func withStatus(s domain.JobStatus) func(*domain.Job) {
	return func(j *domain.Job) { j.Status = s }
}

func withChainID(id int64) func(*domain.Job) {
	return func(j *domain.Job) { j.BlockchainJobID = &id }
}

func withConfirmations(client, freelancer bool) func(*domain.Job) {
	return func(j *domain.Job) {
		j.ClientConfirmedCompletion = client
		j.FreelancerConfirmedCompletion = freelancer
	}
}

func mirror(id int64, status domain.ChainStatus, freelancer string, released bool) *domain.ChainJob {
	if freelancer == "" {
		freelancer = domain.ZeroAddress
	}
	return &domain.ChainJob{
		ID:            id,
		Client:        clientAddr,
		Freelancer:    freelancer,
		Status:        status,
		FundsReleased: released,
	}
}

// memStorage is an in-memory object store.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStorage) GetURL(_ context.Context, key string) (string, error) {
	return "https://files.test/" + key, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

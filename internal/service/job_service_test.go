package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
)

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string]string
	order   []string
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{indexed: map[string]string{}}
}

func (f *fakeIndex) Index(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexed[job.ID]; !ok {
		f.order = append(f.order, job.ID)
	}
	f.indexed[job.ID] = strings.ToLower(job.Title + " " + job.Description)
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.indexed, jobID)
	return nil
}

// Search returns matches oldest first, the reverse of the database order.
func (f *fakeIndex) Search(_ context.Context, filter domain.SearchFilter) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var ids []string
	for _, id := range f.order {
		text, ok := f.indexed[id]
		if ok && strings.Contains(text, strings.ToLower(filter.Query)) && len(ids) < filter.Limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newIndexedJobService(h *harness, index SearchIndex) *JobService {
	return NewJobService(JobServiceConfig{
		Store:      h.store,
		Chain:      h.chain,
		Reconciler: h.reconciler,
		Notifier:   h.notifier,
		Index:      index,
		Logger:     logger.GetDefault(),
	})
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	job, err := h.jobs.CreateJob(ctx, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", domain.JobInput{
		Title:          "  Audit a token contract ",
		Budget:         2,
		SkillsRequired: []string{"solidity"},
		EscrowAddress:  escrowAddr,
		Deadline:       time.Now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, clientAddr, job.ClientAddress)
	assert.Equal(t, "Audit a token contract", job.Title)
	assert.Equal(t, domain.JobStatusOpen, job.Status)
	assert.Equal(t, escrowAddr, job.Escrow())
	assert.False(t, job.OnChain())

	_, err = h.store.Users.Get(ctx, clientAddr)
	assert.NoError(t, err, "posting a job provisions the client")

	_, err = h.jobs.CreateJob(ctx, clientAddr, domain.JobInput{Title: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.jobs.CreateJob(ctx, clientAddr, domain.JobInput{Title: "x", Budget: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.jobs.CreateJob(ctx, clientAddr, domain.JobInput{Title: "x", EscrowAddress: clientAddr})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.jobs.CreateJob(ctx, "", domain.JobInput{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedJob(t)
	h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusInProgress))
	h.seedJob(t, func(j *domain.Job) { j.ClientAddress = otherAddr })

	jobs, total, err := h.jobs.ListJobs(ctx, domain.JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, int64(3), total)

	mine, err := h.jobs.ListClientJobs(ctx, clientAddr)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assigned, err := h.jobs.ListFreelancerJobs(ctx, freelancerAddr)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, domain.JobStatusInProgress, assigned[0].Status)
}

func TestSearchJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the index", func(t *testing.T) {
		h := newHarness(t)
		index := newFakeIndex()
		jobs := newIndexedJobService(h, index)

		logo, err := jobs.CreateJob(ctx, clientAddr, domain.JobInput{Title: "Logo design"})
		require.NoError(t, err)
		_, err = jobs.CreateJob(ctx, clientAddr, domain.JobInput{Title: "Backend API"})
		require.NoError(t, err)

		found, err := jobs.SearchJobs(ctx, domain.SearchFilter{Query: "logo"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, logo.ID, found[0].ID)

		_, err = jobs.CancelJob(ctx, logo.ID, clientAddr)
		require.NoError(t, err)
		found, err = jobs.SearchJobs(ctx, domain.SearchFilter{Query: "logo"})
		require.NoError(t, err)
		assert.Empty(t, found, "cancelled jobs leave the index")
	})

	t.Run("keeps the index order", func(t *testing.T) {
		h := newHarness(t)
		index := newFakeIndex()
		jobs := newIndexedJobService(h, index)

		first := h.seedJob(t, func(j *domain.Job) { j.CreatedAt = time.Now().Add(-time.Hour) })
		second := h.seedJob(t)
		require.NoError(t, index.Index(ctx, first))
		require.NoError(t, index.Index(ctx, second))

		found, err := jobs.SearchJobs(ctx, domain.SearchFilter{Query: "logo"})
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, first.ID, found[0].ID)
		assert.Equal(t, second.ID, found[1].ID)
	})

	t.Run("drops stale and reconciled-away index hits", func(t *testing.T) {
		h := newHarness(t)
		index := newFakeIndex()
		jobs := newIndexedJobService(h, index)

		taken := h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusInProgress))
		moved := h.seedJob(t, withChainID(21))
		open := h.seedJob(t)
		for _, job := range []*domain.Job{taken, moved, open} {
			require.NoError(t, index.Index(ctx, job))
		}
		h.chain.setMirror(mirror(21, domain.ChainStatusInProgress, freelancerAddr, false))

		found, err := jobs.SearchJobs(ctx, domain.SearchFilter{Query: "coffee"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, open.ID, found[0].ID)

		assert.Equal(t, domain.JobStatusInProgress, h.reload(t, moved.ID).Status, "search reconciles what it returns")
		assert.Equal(t, freelancerAddr, h.reload(t, moved.ID).Freelancer())
	})

	t.Run("falls back to the database", func(t *testing.T) {
		h := newHarness(t)
		index := newFakeIndex()
		index.err = errors.New("index offline")
		jobs := newIndexedJobService(h, index)
		h.seedJob(t)

		found, err := jobs.SearchJobs(ctx, domain.SearchFilter{Query: "COFFEE", Limit: 5})
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("filters by tags, category and status", func(t *testing.T) {
		h := newHarness(t)
		branding := h.seedJob(t, func(j *domain.Job) { j.Tags = domain.StringArray{"branding", "print"} })
		h.seedJob(t, func(j *domain.Job) { j.Category = "development"; j.Tags = domain.StringArray{"api"} })
		done := h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusCompleted))

		found, err := h.jobs.SearchJobs(ctx, domain.SearchFilter{Tags: []string{"PRINT", "video"}})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, branding.ID, found[0].ID)

		found, err = h.jobs.SearchJobs(ctx, domain.SearchFilter{Category: "Design"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, branding.ID, found[0].ID)

		found, err = h.jobs.SearchJobs(ctx, domain.SearchFilter{Query: "api"})
		require.NoError(t, err)
		assert.Len(t, found, 1, "text matches tags too")

		found, err = h.jobs.SearchJobs(ctx, domain.SearchFilter{Status: domain.JobStatusCompleted})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, done.ID, found[0].ID)

		_, err = h.jobs.SearchJobs(ctx, domain.SearchFilter{Status: "bogus"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("empty filter lists open jobs", func(t *testing.T) {
		h := newHarness(t)
		h.seedJob(t)
		h.seedJob(t)
		h.seedJob(t, withStatus(domain.JobStatusCancelled))

		found, err := h.jobs.SearchJobs(ctx, domain.SearchFilter{Query: "  "})
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})
}

func TestSearchTags(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.jobs.CreateJob(ctx, clientAddr, domain.JobInput{Title: "Logo", Tags: []string{" Branding", "print", "branding"}})
	require.NoError(t, err)
	h.seedJob(t, func(j *domain.Job) { j.Tags = domain.StringArray{"api", "print"} })
	h.seedJob(t)

	tags, err := h.jobs.SearchTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "branding", "print"}, tags)
}

func TestUpdateJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t)

	title, budget := "Logo and brand kit", 3.0
	got, err := h.jobs.UpdateJob(ctx, job.ID, clientAddr, domain.JobPatch{Title: &title, Budget: &budget})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, budget, got.Budget)

	_, err = h.jobs.UpdateJob(ctx, job.ID, otherAddr, domain.JobPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	funded := h.seedJob(t, withChainID(12))
	_, err = h.jobs.UpdateJob(ctx, funded.ID, clientAddr, domain.JobPatch{Budget: &budget})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	assigned := h.seedJob(t, withFreelancer(freelancerAddr))
	_, err = h.jobs.UpdateJob(ctx, assigned.ID, clientAddr, domain.JobPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPrepareCreateJobTx(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t)

	tx, err := h.jobs.PrepareCreateJobTx(ctx, job.ID, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.TxCreateJob, tx.Action)
	assert.Equal(t, "1500000000000000000", tx.Value)
	assert.Equal(t, clientAddr, tx.From)

	_, err = h.jobs.PrepareCreateJobTx(ctx, job.ID, otherAddr)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	linked := h.seedJob(t, withChainID(2))
	_, err = h.jobs.PrepareCreateJobTx(ctx, linked.ID, clientAddr)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestLinkBlockchainJob(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit id then reconcile", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t)
		h.chain.setMirror(mirror(21, domain.ChainStatusInProgress, freelancerAddr, false))
		id := int64(21)

		got, err := h.jobs.LinkBlockchainJob(ctx, job.ID, clientAddr, &id, "")
		require.NoError(t, err)
		require.True(t, got.OnChain())
		assert.Equal(t, int64(21), *got.BlockchainJobID)
		assert.Equal(t, freelancerAddr, got.Freelancer(), "linking reconciles against the chain job")

		_, err = h.jobs.LinkBlockchainJob(ctx, job.ID, clientAddr, &id, "")
		assert.NoError(t, err, "relinking the same id is a no-op")

		other := int64(22)
		_, err = h.jobs.LinkBlockchainJob(ctx, job.ID, clientAddr, &other, "")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("id from the creation receipt", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t)
		h.chain.created["0xabc"] = 33

		got, err := h.jobs.LinkBlockchainJob(ctx, job.ID, clientAddr, nil, "0xabc")
		require.NoError(t, err)
		assert.Equal(t, int64(33), *got.BlockchainJobID)

		_, err = h.jobs.LinkBlockchainJob(ctx, job.ID, clientAddr, nil, "0xdef")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("needs an id or a hash", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t)
		_, err := h.jobs.LinkBlockchainJob(ctx, job.ID, clientAddr, nil, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSubmitWork(t *testing.T) {
	ctx := context.Background()

	t.Run("assigned open job is healed then submitted", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withChainID(8), withFreelancer(freelancerAddr))
		cid := "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

		res, err := h.jobs.SubmitWork(ctx, job.ID, freelancerAddr, "ipfs://"+cid)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusSubmitted, res.Job.Status)
		require.NotNil(t, res.Transaction)
		assert.Equal(t, domain.TxSubmitWork, res.Transaction.Action)
		assert.Equal(t, cid, h.chain.built()[0].Args.DeliverableRef)

		notes := h.notifications(t, clientAddr)
		require.Len(t, notes, 1)
		assert.Equal(t, domain.NotificationWorkSubmitted, notes[0].Type)
	})

	t.Run("build failure is soft", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withChainID(8), withFreelancer(freelancerAddr), withStatus(domain.JobStatusInProgress))
		h.chain.failBuilds(errBuild)

		res, err := h.jobs.SubmitWork(ctx, job.ID, freelancerAddr, "https://example.com/work.zip")
		require.NoError(t, err)
		assert.Nil(t, res.Transaction)
		assert.NotEmpty(t, res.BlockchainError)
		assert.Equal(t, domain.JobStatusSubmitted, h.reload(t, job.ID).Status)
	})

	t.Run("rejections", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusInProgress))
		done := h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusCompleted))

		_, err := h.jobs.SubmitWork(ctx, job.ID, otherAddr, "https://example.com")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		_, err = h.jobs.SubmitWork(ctx, job.ID, freelancerAddr, " ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = h.jobs.SubmitWork(ctx, done.ID, freelancerAddr, "https://example.com")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestUploadDeliverable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusInProgress))

	up, err := h.jobs.UploadDeliverable(ctx, job.ID, freelancerAddr, "final.zip", "application/zip", strings.NewReader("zip"), 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "deliverables/"+job.ID+"/"))
	assert.Equal(t, "https://files.test/"+up.Key, up.URL)

	_, err = h.jobs.UploadDeliverable(ctx, job.ID, clientAddr, "final.zip", "application/zip", strings.NewReader("zip"), 3)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = h.jobs.UploadDeliverable(ctx, job.ID, freelancerAddr, "big.bin", "", strings.NewReader(""), 2<<20)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t, withChainID(9))
	h.seedProposal(t, job.ID, freelancerAddr, domain.ProposalStatusPending)
	h.seedProposal(t, job.ID, otherAddr, domain.ProposalStatusRejected)

	res, err := h.jobs.CancelJob(ctx, job.ID, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, res.Job.Status)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, domain.TxCancelJob, res.Transaction.Action)
	assert.Equal(t, clientAddr, res.Transaction.From)

	assert.Len(t, h.notifications(t, freelancerAddr), 1)
	assert.Empty(t, h.notifications(t, otherAddr), "only pending proposers are told")

	_, err = h.jobs.CancelJob(ctx, job.ID, clientAddr)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	assigned := h.seedJob(t, withFreelancer(freelancerAddr))
	_, err = h.jobs.CancelJob(ctx, assigned.ID, clientAddr)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "an assigned job reads as in_progress")
}

func TestDeleteJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	job := h.seedJob(t)
	h.seedProposal(t, job.ID, freelancerAddr, domain.ProposalStatusPending)
	require.NoError(t, h.saved.Save(ctx, freelancerAddr, job.ID))

	assert.ErrorIs(t, h.jobs.DeleteJob(ctx, job.ID, otherAddr), domain.ErrUnauthorized)
	require.NoError(t, h.jobs.DeleteJob(ctx, job.ID, clientAddr))

	_, err := h.store.Jobs.Get(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	proposals, err := h.store.Proposals.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, proposals)
	saved, err := h.saved.List(ctx, freelancerAddr)
	require.NoError(t, err)
	assert.Empty(t, saved)

	funded := h.seedJob(t, withChainID(3))
	assert.ErrorIs(t, h.jobs.DeleteJob(ctx, funded.ID, clientAddr), domain.ErrInvalidState)

	working := h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusInProgress))
	assert.ErrorIs(t, h.jobs.DeleteJob(ctx, working.ID, clientAddr), domain.ErrInvalidState)
}

func TestTransactionStatus(t *testing.T) {
	h := newHarness(t)
	h.chain.statuses["0x01"] = &domain.TransactionStatus{TxHash: "0x01", Status: domain.TxSuccess}

	st, err := h.jobs.TransactionStatus(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, domain.TxSuccess, st.Status)

	st, err = h.jobs.TransactionStatus(context.Background(), "0x02")
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, st.Status)
}

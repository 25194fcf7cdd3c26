package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gigescrow/internal/domain"
)

func withEscrow(addr string, allowRevert bool) func(*domain.Job) {
	return func(j *domain.Job) {
		j.EscrowAddress = &addr
		j.AllowEscrowRevert = allowRevert
	}
}

func TestListEscrowJobs(t *testing.T) {
	h := newHarness(t)
	h.seedJob(t, withEscrow(escrowAddr, false))
	h.seedJob(t)

	jobs, err := h.escrow.ListEscrowJobs(context.Background(), escrowAddr)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = h.escrow.ListEscrowJobs(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReleaseAsEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("escrow agent signs the approval", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t,
			withEscrow(escrowAddr, false),
			withChainID(15),
			withFreelancer(freelancerAddr),
			withStatus(domain.JobStatusCompleted),
			withConfirmations(true, true),
		)
		h.chain.setMirror(mirror(15, domain.ChainStatusSubmitted, freelancerAddr, false))

		res, err := h.escrow.ReleaseAsEscrow(ctx, job.ID, escrowAddr)
		require.NoError(t, err)
		assert.True(t, res.BothConfirmed)
		assert.Equal(t, ActionApproveWork, res.NeededAction)
		require.NotNil(t, res.Transaction)
		assert.Equal(t, escrowAddr, res.Transaction.From)
	})

	t.Run("requires both confirmations", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withEscrow(escrowAddr, false), withFreelancer(freelancerAddr), withConfirmations(true, false))

		_, err := h.escrow.ReleaseAsEscrow(ctx, job.ID, escrowAddr)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("only the escrow agent", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withEscrow(escrowAddr, false), withFreelancer(freelancerAddr), withConfirmations(true, true))

		_, err := h.escrow.ReleaseAsEscrow(ctx, job.ID, clientAddr)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestRevertAsEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("refunds an untouched job", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withEscrow(escrowAddr, true), withChainID(16))

		res, err := h.escrow.RevertAsEscrow(ctx, job.ID, escrowAddr)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRefunded, res.Job.Status)
		require.NotNil(t, res.Transaction)
		assert.Equal(t, domain.TxCancelJob, res.Transaction.Action)
		assert.Equal(t, escrowAddr, res.Transaction.From)

		notes := h.notifications(t, clientAddr)
		require.Len(t, notes, 1)
		assert.Equal(t, job.ID, notes[0].RelatedJobID)
	})

	t.Run("client must have allowed it", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withEscrow(escrowAddr, false))

		_, err := h.escrow.RevertAsEscrow(ctx, job.ID, escrowAddr)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("engaged freelancer blocks it", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withEscrow(escrowAddr, true), withFreelancer(freelancerAddr))

		_, err := h.escrow.RevertAsEscrow(ctx, job.ID, escrowAddr)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Equal(t, domain.JobStatusOpen, h.reload(t, job.ID).Status, "rejected revert writes nothing")
	})

	t.Run("only the escrow agent", func(t *testing.T) {
		h := newHarness(t)
		job := h.seedJob(t, withEscrow(escrowAddr, true))

		_, err := h.escrow.RevertAsEscrow(ctx, job.ID, otherAddr)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

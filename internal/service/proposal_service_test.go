package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gigescrow/internal/domain"
)

func TestCreateProposal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t)
	in := domain.ProposalInput{JobID: job.ID, CoverLetter: "Five years of brand work", PortfolioLinks: []string{"https://example.com"}}

	p, err := h.proposals.CreateProposal(ctx, "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", in)
	require.NoError(t, err)
	assert.Equal(t, freelancerAddr, p.FreelancerAddress)
	assert.Equal(t, domain.ProposalStatusPending, p.Status)
	assert.Equal(t, 1, h.reload(t, job.ID).ProposalCount)

	notes := h.notifications(t, clientAddr)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationProposalReceived, notes[0].Type)

	_, err = h.proposals.CreateProposal(ctx, freelancerAddr, in)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "one proposal per freelancer")

	_, err = h.proposals.CreateProposal(ctx, clientAddr, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "no bidding on your own job")

	_, err = h.proposals.CreateProposal(ctx, otherAddr, domain.ProposalInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	taken := h.seedJob(t, withFreelancer(otherAddr))
	_, err = h.proposals.CreateProposal(ctx, freelancerAddr, domain.ProposalInput{JobID: taken.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = h.proposals.CreateProposal(ctx, freelancerAddr, domain.ProposalInput{JobID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListProposals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t)
	h.seedProposal(t, job.ID, freelancerAddr, domain.ProposalStatusPending)
	h.seedProposal(t, job.ID, otherAddr, domain.ProposalStatusPending)

	forJob, err := h.proposals.ListJobProposals(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, forJob, 2)

	mine, err := h.proposals.ListFreelancerProposals(ctx, freelancerAddr)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = h.proposals.ListJobProposals(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRejectProposal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t)
	p := h.seedProposal(t, job.ID, freelancerAddr, domain.ProposalStatusPending)

	_, err := h.proposals.RejectProposal(ctx, p.ID, freelancerAddr)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := h.proposals.RejectProposal(ctx, p.ID, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalStatusRejected, got.Status)

	notes := h.notifications(t, freelancerAddr)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationProposalRejected, notes[0].Type)

	_, err = h.proposals.RejectProposal(ctx, p.ID, clientAddr)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestWithdrawProposal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t)

	p, err := h.proposals.CreateProposal(ctx, freelancerAddr, domain.ProposalInput{JobID: job.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, h.proposals.WithdrawProposal(ctx, p.ID, otherAddr), domain.ErrUnauthorized)
	require.NoError(t, h.proposals.WithdrawProposal(ctx, p.ID, freelancerAddr))

	_, err = h.proposals.GetProposal(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, h.reload(t, job.ID).ProposalCount)

	accepted := h.seedProposal(t, job.ID, otherAddr, domain.ProposalStatusAccepted)
	assert.ErrorIs(t, h.proposals.WithdrawProposal(ctx, accepted.ID, otherAddr), domain.ErrInvalidState)
}

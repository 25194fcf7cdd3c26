package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/gigescrow/internal/domain"
)

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("registers a new wallet", func(t *testing.T) {
		h := newHarness(t)
		u, err := h.users.CreateUser(ctx, domain.UserInput{
			WalletAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Username:      "ada",
			Role:          domain.UserRoleClient,
		})
		require.NoError(t, err)
		assert.Equal(t, clientAddr, u.WalletAddress)
		assert.Equal(t, "ada", u.Username)

		_, err = h.users.CreateUser(ctx, domain.UserInput{WalletAddress: clientAddr, Username: "again"})
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("completes a provisioned profile", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.Users.EnsureExists(ctx, freelancerAddr)
		require.NoError(t, err)

		u, err := h.users.CreateUser(ctx, domain.UserInput{WalletAddress: freelancerAddr, Username: "grace", Skills: []string{"go"}})
		require.NoError(t, err)
		assert.Equal(t, "grace", u.Username)
		assert.Equal(t, domain.UserRoleBoth, u.Role)
		assert.Equal(t, domain.StringArray{"go"}, u.Skills)
	})

	t.Run("validation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.users.CreateUser(ctx, domain.UserInput{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = h.users.CreateUser(ctx, domain.UserInput{WalletAddress: otherAddr, Role: "admin"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.store.Users.EnsureExists(ctx, clientAddr)
	require.NoError(t, err)

	bio := "Runs a coffee shop"
	_, err = h.users.UpdateUser(ctx, clientAddr, otherAddr, domain.UserPatch{Bio: &bio})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	u, err := h.users.UpdateUser(ctx, clientAddr, clientAddr, domain.UserPatch{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, bio, u.Bio)

	empty := " "
	_, err = h.users.UpdateUser(ctx, clientAddr, clientAddr, domain.UserPatch{Username: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUserStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.store.Users.EnsureExists(ctx, freelancerAddr)
	require.NoError(t, err)
	h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusCompleted))
	h.seedJob(t, withFreelancer(freelancerAddr), withStatus(domain.JobStatusInProgress))

	stats, err := h.users.Stats(ctx, freelancerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.JobsPosted)
	assert.Equal(t, int64(2), stats.JobsAssigned)
	assert.Equal(t, int64(1), stats.JobsCompleted)

	_, err = h.users.Stats(ctx, otherAddr)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSavedJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	job := h.seedJob(t)

	require.NoError(t, h.saved.Save(ctx, freelancerAddr, job.ID))
	require.NoError(t, h.saved.Save(ctx, freelancerAddr, job.ID), "saving twice is fine")
	assert.ErrorIs(t, h.saved.Save(ctx, freelancerAddr, "missing"), domain.ErrNotFound)

	jobs, err := h.saved.List(ctx, freelancerAddr)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	require.NoError(t, h.saved.Unsave(ctx, freelancerAddr, job.ID))
	assert.ErrorIs(t, h.saved.Unsave(ctx, freelancerAddr, job.ID), domain.ErrNotFound)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.notifier.Notify(ctx, domain.Notification{UserAddress: clientAddr, Type: domain.NotificationWorkSubmitted, Title: "Work submitted"})
	}
	h.notifier.Notify(ctx, domain.Notification{Type: domain.NotificationWorkSubmitted})

	list, err := h.notifier.List(ctx, clientAddr, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.NoError(t, h.notifier.MarkRead(ctx, list[0].ID, clientAddr))
	count, err := h.notifier.Count(ctx, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.UnreadCount)
	assert.Equal(t, int64(3), count.TotalCount)

	changed, err := h.notifier.MarkAllRead(ctx, clientAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	assert.ErrorIs(t, h.notifier.MarkRead(ctx, list[1].ID, otherAddr), domain.ErrNotFound)
}

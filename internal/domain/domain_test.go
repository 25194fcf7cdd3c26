package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanStrings(t *testing.T) {
	assert.Equal(t, StringArray{"go", "solidity"}, CleanStrings([]string{" go", "", "solidity", "go "}))
	assert.NotNil(t, CleanStrings(nil))
}

func TestStringArrayRoundTripsThroughColumn(t *testing.T) {
	v, err := StringArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var a StringArray
	require.NoError(t, a.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, StringArray{"a", "b"}, a)
	require.NoError(t, a.Scan(nil))
	assert.Empty(t, a)
	assert.Error(t, a.Scan(42))
}

func TestStatusOrdering(t *testing.T) {
	assert.True(t, JobStatusCompleted.AtLeast(JobStatusSubmitted))
	assert.True(t, JobStatusInProgress.AtLeast(JobStatusInProgress))
	assert.False(t, JobStatusOpen.AtLeast(JobStatusInProgress))
	assert.False(t, JobStatusDisputed.AtLeast(JobStatusOpen), "off-path statuses never rank")
	assert.True(t, JobStatusRefunded.Terminal())
	assert.False(t, JobStatusDisputed.Terminal())
}

func TestChainStatusMapping(t *testing.T) {
	for cs := ChainStatusOpen; cs <= ChainStatusRefunded; cs++ {
		st, ok := cs.JobStatus()
		assert.True(t, ok)
		assert.True(t, st.Valid())
	}
	_, ok := ChainStatus(9).JobStatus()
	assert.False(t, ok)
	assert.Equal(t, "unknown(9)", ChainStatus(9).String())
}

func TestJobAssignment(t *testing.T) {
	var j Job
	assert.False(t, j.HasFreelancer())
	j.SetFreelancer(" 0xABC ")
	assert.Equal(t, "0xabc", j.Freelancer())
	j.SetFreelancer("")
	assert.Nil(t, j.FreelancerAddress)

	assert.True(t, SameAddress("0xAbC", "0xabc"))
	assert.False(t, SameAddress("", ""))
}

package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition_InBatchDuplicates(t *testing.T) {
	a := Candidate{Title: "Backend Engineer", URL: "https://x.com/jobs/1", Company: "Acme"}
	b := Candidate{Title: "Data Analyst", URL: "https://x.com/jobs/2", Company: "Acme"}

	p := Partition([]Candidate{a, b, a}, map[string]struct{}{})

	require.Len(t, p.New, 2)
	assert.Equal(t, a, p.New[0].Candidate)
	assert.Equal(t, b, p.New[1].Candidate)

	require.Len(t, p.Duplicate, 1)
	assert.Equal(t, 2, p.Duplicate[0].Index)
	assert.Equal(t, 0, p.Duplicate[0].OriginalIndex)
	assert.Equal(t, DuplicateInBatch, p.Duplicate[0].Reason)
	assert.Empty(t, p.Collisions)
}

func TestPartition_KnownSignatures(t *testing.T) {
	a := Candidate{Title: "Backend Engineer", URL: "https://x.com/jobs/1", Company: "Acme"}
	b := Candidate{Title: "Data Analyst", URL: "https://x.com/jobs/2", Company: "Acme"}
	known := map[string]struct{}{a.Signature(): {}}

	p := Partition([]Candidate{a, b}, known)

	require.Len(t, p.New, 1)
	assert.Equal(t, b.Signature(), p.New[0].Signature)
	require.Len(t, p.Duplicate, 1)
	assert.Equal(t, DuplicateKnown, p.Duplicate[0].Reason)
	assert.Equal(t, -1, p.Duplicate[0].OriginalIndex)
	assert.Equal(t, []string{b.Signature()}, p.Signatures())
}

func TestPartition_NormalizedVariantsAreDuplicates(t *testing.T) {
	a := Candidate{Title: "Backend Engineer", URL: "https://x.com/jobs/1", Company: "Acme"}
	variant := Candidate{Title: "backend  engineer", URL: "https://x.com/jobs/1", Company: " ACME "}

	p := Partition([]Candidate{a, variant}, nil)
	require.Len(t, p.New, 1)
	require.Len(t, p.Duplicate, 1)
	assert.Equal(t, DuplicateInBatch, p.Duplicate[0].Reason)
}

func TestPartition_CollisionFirstSeenWins(t *testing.T) {
	a := Candidate{Title: "Backend Engineer", URL: "https://x.com/jobs/1", Company: "Acme"}
	b := Candidate{Title: "Data Analyst", URL: "https://x.com/jobs/2", Company: "Acme"}
	constant := func(Candidate) string { return "same" }

	p := partition([]Candidate{a, b}, nil, constant)

	require.Len(t, p.New, 1)
	assert.Equal(t, a, p.New[0].Candidate)
	require.Len(t, p.Duplicate, 1)
	assert.Equal(t, DuplicateCollision, p.Duplicate[0].Reason)
	require.Len(t, p.Collisions, 1)
	assert.Equal(t, b, p.Collisions[0].Second)
	assert.Contains(t, p.Collisions[0].Error(), "signature collision")
}

func TestPartition_Empty(t *testing.T) {
	p := Partition(nil, nil)
	assert.Empty(t, p.New)
	assert.Empty(t, p.Duplicate)
}

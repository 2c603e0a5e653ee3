package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-format/rewarder/internal/model"
	"github.com/open-format/rewarder/internal/store"
)

func sampleRecord(key uuid.UUID) model.ProcessedReward {
	return model.ProcessedReward{
		Key: key,
		Ref: model.MessageRef{
			GuildID:   "100",
			ChannelID: "200",
			MessageID: "300",
		},
		AuthorID: "400",
		Score: model.ScoreResult{
			QualityScore:    0.8,
			TrustScore:      0.6,
			MeetsConditions: true,
		},
		Receipt:     model.IssueReceipt{Status: "success", Message: "ok"},
		ProcessedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	key := uuid.New()

	// Unknown key has no record.
	_, err := m.Get(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// First reservation wins, second loses.
	require.NoError(t, m.Reserve(ctx, key))
	assert.ErrorIs(t, m.Reserve(ctx, key), store.ErrAlreadyProcessed)

	// Reserved but not finalized is not readable.
	_, err = m.Get(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec := sampleRecord(key)
	require.NoError(t, m.Finalize(ctx, key, rec))

	got, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// A finalized record blocks re-reservation permanently.
	assert.ErrorIs(t, m.Reserve(ctx, key), store.ErrAlreadyProcessed)
}

func TestMemoryReleaseReopensKey(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	key := uuid.New()

	require.NoError(t, m.Reserve(ctx, key))
	require.NoError(t, m.Release(ctx, key))

	// Released reservation can be taken again.
	require.NoError(t, m.Reserve(ctx, key))
}

func TestMemoryReleaseKeepsFinalizedRecord(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	key := uuid.New()

	require.NoError(t, m.Reserve(ctx, key))
	require.NoError(t, m.Finalize(ctx, key, sampleRecord(key)))

	// Release only drops pending reservations, never completed records.
	require.NoError(t, m.Release(ctx, key))
	_, err := m.Get(ctx, key)
	assert.NoError(t, err)
	assert.ErrorIs(t, m.Reserve(ctx, key), store.ErrAlreadyProcessed)
}

func TestMemoryConcurrentReserveSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	key := uuid.New()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Reserve(ctx, key) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
}

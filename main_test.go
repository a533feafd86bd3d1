package main

import (
	"context"
	"testing"

	"precursor/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	archived []snapshot.Record
}

func (s *countingSink) Archive(_ context.Context, rec snapshot.Record) error {
	s.archived = append(s.archived, rec)
	return nil
}

func storeWithDetached(t *testing.T) *snapshot.Store {
	t.Helper()
	store := snapshot.NewStore(nil)
	store.RecordSave("a.txt", "saved")
	store.RecordLiveEdit("a.txt", "draft")
	store.RecordClose("a.txt")
	require.Len(t, store.Detached(), 1)
	return store
}

func TestShutdownFlush_InMemoryArchiveIsSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := storeWithDetached(t)
	sink := &countingSink{}

	n := shutdownFlush(context.Background(), store, sink, false, zap.New(core))

	assert.Equal(t, 0, n)
	assert.Empty(t, sink.archived)
	assert.True(t, store.Has("a.txt"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(1), logs.All()[0].ContextMap()["count"])
}

func TestShutdownFlush_PersistentArchive(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := storeWithDetached(t)
	sink := &countingSink{}

	n := shutdownFlush(context.Background(), store, sink, true, zap.New(core))

	assert.Equal(t, 1, n)
	require.Len(t, sink.archived, 1)
	assert.False(t, store.Has("a.txt"))
	assert.Equal(t, 1, logs.FilterMessage("archived detached buffers").Len())
}

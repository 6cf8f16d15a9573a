package valuedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_InsertAndRead(t *testing.T) {
	ctx := context.Background()
	db, err := InitializeDatabase(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for i, v := range []uint32{123, 456, 456} {
		require.NoError(t, InsertPublishedValue(ctx, db, &PublishedValue{
			Timestamp:   int64(1000 + i),
			Destination: "serial.any.values",
			Value:       v,
		}))
	}

	values, err := LatestPublishedValues(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, uint32(456), values[0].Value)
	assert.Equal(t, int64(1002), values[0].Timestamp)
	assert.Equal(t, uint32(123), values[2].Value)
	assert.Equal(t, "serial.any.values", values[2].Destination)

	latest, err := LatestPublishedValues(ctx, db, 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestJournal_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := InitializeDatabase(path)
	require.NoError(t, err)
	require.NoError(t, InsertPublishedValue(ctx, db, &PublishedValue{Timestamp: 1, Destination: "a.b.c", Value: 4294967295}))
	require.NoError(t, db.Close())

	db, err = InitializeDatabase(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	values, err := LatestPublishedValues(ctx, db, 5)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, uint32(4294967295), values[0].Value)
}

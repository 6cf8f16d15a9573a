package publisher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/valuedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalPublisher(t *testing.T) {
	ctx := context.Background()
	db, err := valuedb.InitializeDatabase(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	j := NewJournalPublisher(db)
	j.now = func() time.Time { return epoch }
	require.NoError(t, j.Publish(ctx, "serial.any.values", 42))

	values, err := valuedb.LatestPublishedValues(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, uint32(42), values[0].Value)
	assert.Equal(t, epoch.UnixMilli(), values[0].Timestamp)
}

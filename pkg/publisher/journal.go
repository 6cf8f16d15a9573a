package publisher

import (
	"context"
	"database/sql"
	"time"

	"github.com/NotCoffee418/tether_serial/pkg/valuedb"
)

// JournalPublisher records every published value in the value journal.
type JournalPublisher struct {
	db  *sql.DB
	now func() time.Time
}

func NewJournalPublisher(db *sql.DB) *JournalPublisher {
	return &JournalPublisher{db: db, now: time.Now}
}

func (j *JournalPublisher) Publish(ctx context.Context, destination string, value uint32) error {
	return valuedb.InsertPublishedValue(ctx, j.db, &valuedb.PublishedValue{
		Timestamp:   j.now().UnixMilli(),
		Destination: destination,
		Value:       value,
	})
}

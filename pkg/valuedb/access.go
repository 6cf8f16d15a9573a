package valuedb

import (
	"context"
	"database/sql"
)

func InsertPublishedValue(ctx context.Context, db *sql.DB, value *PublishedValue) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO published_values (timestamp, destination, value) "+
			"VALUES (?, ?, ?)",
		value.Timestamp,
		value.Destination,
		value.Value,
	)
	return err
}

// LatestPublishedValues returns up to limit values, newest first.
func LatestPublishedValues(ctx context.Context, db *sql.DB, limit int) ([]PublishedValue, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT timestamp, destination, value FROM published_values "+
			"ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]PublishedValue, 0, limit)
	for rows.Next() {
		var v PublishedValue
		if err := rows.Scan(&v.Timestamp, &v.Destination, &v.Value); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

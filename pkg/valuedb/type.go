package valuedb

type PublishedValue struct {
	Timestamp   int64  `db:"timestamp" json:"timestamp"` // unix milliseconds
	Destination string `db:"destination" json:"destination"`
	Value       uint32 `db:"value" json:"value"`
}

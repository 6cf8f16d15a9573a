package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// stripID drops the random message id so payloads can be compared.
func stripID(t *testing.T, data []byte) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	require.NotEmpty(t, m["id"])
	delete(m, "id")
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return string(out)
}

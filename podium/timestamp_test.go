package podium

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	ID      json.Number `json:"id"`
	Title   string      `json:"title"`
	Start   Timestamp   `json:"start"`
	Created time.Time   `json:"created"`
}

func TestTimestampJSON(t *testing.T) {
	ts := NewTimestamp(time.Date(2023, 3, 5, 9, 7, 2, 0, time.UTC))

	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2023-03-05 09:07:02"`, string(raw))

	var parsed Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2023-3-5 9:07:02"`), &parsed))
	assert.True(t, ts.Equal(parsed.Time))

	require.NoError(t, json.Unmarshal([]byte(`"2023-03-05T09:07:02Z"`), &parsed))
	assert.True(t, ts.Equal(parsed.Time))

	require.NoError(t, json.Unmarshal([]byte(`null`), &parsed))
	assert.True(t, parsed.IsZero())

	raw, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &parsed))
	assert.Error(t, json.Unmarshal([]byte(`12`), &parsed))
}

func TestDecode(t *testing.T) {
	payload := ToNative(map[string]any{
		"id":      json.Number("7"),
		"title":   "Final",
		"start":   "2023-3-5 9:07:02",
		"created": "2022-12-1 0:00:00",
	})

	var ev event
	require.NoError(t, Decode(payload, &ev))
	assert.Equal(t, json.Number("7"), ev.ID)
	assert.Equal(t, "Final", ev.Title)
	assert.Equal(t, "2023-03-05 09:07:02", ev.Start.String())
	assert.True(t, time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC).Equal(ev.Created))
}

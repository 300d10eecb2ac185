package ntime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	var moment NTime
	require.NoError(t, moment.Scan(time.Date(2024, 3, 31, 6, 30, 0, 0, time.FixedZone("CEST", 2*60*60))))
	encoded, err := json.Marshal(moment)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-31T04:30:00Z"`, string(encoded))

	var decoded NTime
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.True(t, decoded.Valid())
	assert.True(t, decoded.Time().Equal(moment.Time()))

	encoded, err = json.Marshal(NTime{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(encoded))

	require.NoError(t, json.Unmarshal([]byte("null"), &decoded))
	assert.False(t, decoded.Valid())
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &decoded))
}

func TestScan(t *testing.T) {
	var nt NTime
	require.NoError(t, nt.Scan(time.Unix(0, 0)))
	assert.True(t, nt.Valid())
	assert.Equal(t, time.UTC, nt.Time().Location())

	require.NoError(t, nt.Scan(nil))
	assert.False(t, nt.Valid())
	value, err := nt.Value()
	require.NoError(t, err)
	assert.Nil(t, value)

	assert.True(t, Now().Valid())
	assert.Equal(t, time.UTC, Now().Time().Location())
}

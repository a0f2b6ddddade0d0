package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Reading `json:"a"`
		B Reading `json:"b"`
	}{Some(0), None()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0,"b":null}`, string(b))

	var back struct {
		A Reading `json:"a"`
		B Reading `json:"b"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Some(0), back.A)
	assert.Equal(t, None(), back.B)
}

func TestReadingJSONNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		b, err := json.Marshal(AggregateState{AverageTemperature: Some(v)})
		require.NoError(t, err)
		assert.Contains(t, string(b), `"average_temperature":null`)
		assert.True(t, json.Valid(b))
	}
}

func TestReadingPtr(t *testing.T) {
	assert.Nil(t, None().Ptr())
	require.NotNil(t, Some(0).Ptr())
	assert.Equal(t, 0.0, *Some(0).Ptr())
}

func TestRound2(t *testing.T) {
	assert.Equal(t, -18.46, Round2(-18.4567))
	assert.Equal(t, 23.13, Round2(23.125001))
	assert.Equal(t, 0.0, Round2(0.004))
}

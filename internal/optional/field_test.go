package optional

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type patch struct {
	Body Field[string] `json:"body"`
}

func TestField_AbsentNullAndValue(t *testing.T) {
	var absent patch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	assert.False(t, absent.Body.IsSet())
	_, ok := absent.Body.Get()
	assert.False(t, ok)

	var null patch
	require.NoError(t, json.Unmarshal([]byte(`{"body": null}`), &null))
	assert.True(t, null.Body.IsSet())
	assert.True(t, null.Body.Null)
	_, ok = null.Body.Get()
	assert.False(t, ok)

	var empty patch
	require.NoError(t, json.Unmarshal([]byte(`{"body": ""}`), &empty))
	v, ok := empty.Body.Get()
	assert.True(t, ok)
	assert.Equal(t, "", v)

	var set patch
	require.NoError(t, json.Unmarshal([]byte(`{"body": "buy milk"}`), &set))
	v, ok = set.Body.Get()
	assert.True(t, ok)
	assert.Equal(t, "buy milk", v)
}

func TestField_TypeMismatch(t *testing.T) {
	var p patch
	assert.Error(t, json.Unmarshal([]byte(`{"body": 42}`), &p))
}

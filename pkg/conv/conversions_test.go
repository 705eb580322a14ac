package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	m, err := ParseKeyValues([]string{"blocks=10", "label=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "10", m["blocks"])
	assert.Equal(t, "a=b", m["label"])
}

func TestParseKeyValuesMalformed(t *testing.T) {
	_, err := ParseKeyValues([]string{"notakeyvalue"})
	assert.Error(t, err)
}

func TestInferTypedMap(t *testing.T) {
	typed := InferTypedMap(map[string]string{
		"count":   "3",
		"ratio":   "0.5",
		"enabled": "true",
		"name":    "harness",
	})
	assert.Equal(t, 3, typed["count"])
	assert.Equal(t, 0.5, typed["ratio"])
	assert.Equal(t, true, typed["enabled"])
	assert.Equal(t, "harness", typed["name"])
}

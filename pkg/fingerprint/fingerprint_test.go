package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": map[string]any{"y": "2", "x": []any{1, "z"}}}
	b := map[string]any{"a": map[string]any{"x": []any{1, "z"}, "y": "2"}, "b": 1}

	assert.Equal(t, Generate(a), Generate(b))
	assert.Len(t, Generate(a), 64)
	assert.NotEqual(t, Generate(a), Generate(map[string]any{"b": 2}))
}

func TestCandidateQuery(t *testing.T) {
	t.Run("make order and case ignored", func(t *testing.T) {
		assert.Equal(t,
			CandidateQuery("t1", []string{"Toyota", "honda"}, 2018, 2022),
			CandidateQuery("t1", []string{"HONDA", " toyota"}, 2018, 2022),
		)
	})

	t.Run("tenant and span matter", func(t *testing.T) {
		base := CandidateQuery("t1", []string{"toyota"}, 2018, 2022)
		assert.NotEqual(t, base, CandidateQuery("t2", []string{"toyota"}, 2018, 2022))
		assert.NotEqual(t, base, CandidateQuery("t1", []string{"toyota"}, 2017, 2022))
	})
}

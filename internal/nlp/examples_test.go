package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveOrderingAndLimit(t *testing.T) {
	t.Parallel()
	r := NewExampleRetriever()
	for _, k := range []int{1, 2, 3, 10} {
		got := r.Retrieve("I feel lost about my relationships", "", k)
		assert.LessOrEqual(t, len(got), k)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
		}
	}
	got := r.Retrieve("I feel lost about who I am.", "", 1)
	require.Len(t, got, 1)
	assert.Equal(t, IdentityAffirmation, got[0].Intent)
	assert.Equal(t, 1.0, got[0].Similarity)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	t.Parallel()
	got := NewExampleRetriever().Retrieve("", "", 10)
	require.Len(t, got, 4)
	for _, ex := range got {
		assert.Equal(t, 0.0, ex.Similarity)
	}
}

func TestRetrieveFiltersByIntent(t *testing.T) {
	t.Parallel()
	r := NewExampleRetriever()
	got := r.Retrieve("anything", WellBeing, 0)
	require.Len(t, got, 1)
	assert.Equal(t, WellBeing, got[0].Intent)
	assert.Empty(t, r.Retrieve("anything", SpiritualGrowth, 2))
}

func TestVariationAvailable(t *testing.T) {
	t.Parallel()
	v := Variation{Variables: []string{"name", "pronouns", "response_length"}}
	assert.Equal(t, []string{"name", "response_length"}, v.Available(UserContext{ScreenName: "Sam", ResponseLength: "short"}))
	assert.Nil(t, v.Available(UserContext{}))
}

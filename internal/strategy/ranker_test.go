package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adudulescu/stock-predictor/internal/model"
)

func pred(symbol string, upside, combined float64) *model.Prediction {
	return &model.Prediction{Symbol: symbol, PredictedUpside: upside, CombinedScore: combined}
}

func symbols(preds []*model.Prediction) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.Symbol
	}
	return out
}

func TestRank_FiltersAndSorts(t *testing.T) {
	in := []*model.Prediction{
		pred("A", 12, 60),
		pred("B", 4, 90),
		pred("C", 10, 75),
		pred("D", 20, 60),
		nil,
		pred("E", 10, 80),
	}
	out, n := Rank(in, 10)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"E", "C", "A", "D"}, symbols(out))
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].CombinedScore, out[i].CombinedScore)
	}
	// input untouched
	assert.Equal(t, "A", in[0].Symbol)
}

func TestRank_Idempotent(t *testing.T) {
	in := []*model.Prediction{pred("A", 1, 10), pred("B", 5, 20), pred("C", 7, 20), pred("D", -3, 99)}
	once, _ := Rank(in, 2)
	twice, n := Rank(once, 2)
	assert.Equal(t, symbols(once), symbols(twice))
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"B", "C"}, symbols(twice))
}

func TestRank_NothingQualifies(t *testing.T) {
	out, n := Rank([]*model.Prediction{pred("AAA", 10, 70)}, 50)
	assert.Empty(t, out)
	assert.Equal(t, 0, n)
}

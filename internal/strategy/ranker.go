package strategy

import (
	"sort"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// Rank keeps predictions whose upside is at least minUpside and orders them by
// combined score, highest first. Equal scores keep their input order. The
// input slice is not modified.
func Rank(preds []*model.Prediction, minUpside float64) ([]*model.Prediction, int) {
	out := make([]*model.Prediction, 0, len(preds))
	for _, p := range preds {
		if p != nil && p.PredictedUpside >= minUpside {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})
	return out, len(out)
}

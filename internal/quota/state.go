package quota

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// LoadState reads the quota state from a JSON file. Returns a zero state if the file doesn't exist.
func LoadState(filePath string) (*model.QuotaState, error) {
	if filePath == "" {
		return &model.QuotaState{}, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.QuotaState{}, nil
		}
		return nil, err
	}
	var state model.QuotaState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState writes the quota state to a JSON file. An empty path keeps the
// state in memory only.
func SaveState(filePath string, state *model.QuotaState) error {
	state.UpdatedAt = time.Now()
	if filePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0o644)
}

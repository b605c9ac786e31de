package train

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SnapshotState is the JSON document a Snapshot writes.
type SnapshotState struct {
	Iteration    int                `json:"iteration"`
	Epoch        int                `json:"epoch"`
	EpochDetail  float64            `json:"epoch_detail"`
	SavedAt      time.Time          `json:"saved_at"`
	Observations map[string]float64 `json:"observations,omitempty"`
}

// A Snapshot writes trainer progress to a JSON file, replacing
// the previous snapshot atomically via a rename.
type Snapshot struct {
	path string
}

// NewSnapshot creates a Snapshot extension writing to path.
func NewSnapshot(path string) *Snapshot {
	return &Snapshot{path: path}
}

func (s *Snapshot) Invoke(tr *Trainer) error {
	state := SnapshotState{
		Iteration:   tr.Updater().Iteration(),
		Epoch:       tr.Updater().Epoch(),
		EpochDetail: tr.Updater().EpochDetail(),
		SavedAt:     time.Now().UTC(),
	}
	for key, value := range tr.Observations() {
		if x, ok := value.(float64); ok {
			if state.Observations == nil {
				state.Observations = map[string]float64{}
			}
			state.Observations[key] = x
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a previously written snapshot file.
func ReadSnapshot(path string) (*SnapshotState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var state SnapshotState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return &state, nil
}

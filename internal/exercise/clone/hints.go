package clone

import (
	"context"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
)

// HintWriter persists hints.
type HintWriter interface {
	CreateHint(ctx context.Context, tx db.Transaction, hint *model.Hint) (int64, error)
}

// StoreHintCloner copies hint rows one by one. Task and solution entry links
// are left empty; the cloner rebuilds them from the remaps.
type StoreHintCloner struct {
	store HintWriter
}

func NewStoreHintCloner(store HintWriter) *StoreHintCloner {
	return &StoreHintCloner{store: store}
}

func (h *StoreHintCloner) CloneHints(ctx context.Context, tx db.Transaction, source, target *model.Exercise) (map[int64]int64, error) {
	out := make(map[int64]int64, len(source.Hints))
	for _, hint := range source.Hints {
		copied := &model.Hint{
			ExerciseID:  target.ID,
			Title:       hint.Title,
			Description: hint.Description,
			Content:     hint.Content,
			Kind:        hint.Kind,
		}
		id, err := h.store.CreateHint(ctx, tx, copied)
		if err != nil {
			return nil, err
		}
		out[hint.ID] = id
		target.Hints = append(target.Hints, copied)
	}
	return out, nil
}

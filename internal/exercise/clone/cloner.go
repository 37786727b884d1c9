// Package clone copies the content graph of one programming exercise into a new one.
package clone

import (
	"context"
	"errors"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/statement"
	apperrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// GraphWriter is the part of the entity store the cloner writes through.
type GraphWriter interface {
	CreateExercise(ctx context.Context, tx db.Transaction, exercise *model.Exercise) (int64, error)
	UpdateExercise(ctx context.Context, tx db.Transaction, exercise *model.Exercise) error
	CreateSubmissionPolicy(ctx context.Context, tx db.Transaction, policy *model.SubmissionPolicy) (int64, error)
	CreateTestCase(ctx context.Context, tx db.Transaction, testCase *model.TestCase) (int64, error)
	CreateTask(ctx context.Context, tx db.Transaction, task *model.Task) (int64, error)
	UpdateHintTask(ctx context.Context, tx db.Transaction, hintID, taskID int64) error
	CreateSolutionEntry(ctx context.Context, tx db.Transaction, entry *model.SolutionEntry) (int64, error)
	CreateCategory(ctx context.Context, tx db.Transaction, category *model.StaticAnalysisCategory) (int64, error)
	CreateAuxiliaryRepository(ctx context.Context, tx db.Transaction, aux *model.AuxiliaryRepository, position int) (int64, error)
}

// HintCloner copies the hints of source into target, appending them to
// target.Hints, and returns the old to new hint id map.
type HintCloner interface {
	CloneHints(ctx context.Context, tx db.Transaction, source, target *model.Exercise) (map[int64]int64, error)
}

// ErrTargetPersisted is returned when the target shell already has an id.
var ErrTargetPersisted = errors.New("clone target must not be persisted yet")

// Cloner implements the content graph copy.
type Cloner struct {
	store GraphWriter
	hints HintCloner
}

// NewCloner creates a cloner. A nil hint cloner falls back to StoreHintCloner on store.
func NewCloner(store GraphWriter, hints HintCloner) *Cloner {
	if hints == nil {
		if hw, ok := store.(HintWriter); ok {
			hints = NewStoreHintCloner(hw)
		}
	}
	return &Cloner{store: store, hints: hints}
}

// Clone persists target and copies the content graph of source into it.
// Every reference in the resulting graph points at target entities. Any
// persistence failure aborts the copy; the caller owns tx and must roll back.
func (c *Cloner) Clone(ctx context.Context, tx db.Transaction, source, target *model.Exercise) (*model.Exercise, *model.IDRemap, error) {
	if source == nil || target == nil {
		return nil, nil, apperrors.New(apperrors.InvalidParams).WithMessage("source and target are required")
	}
	if target.ID != 0 {
		return nil, nil, apperrors.Wrap(ErrTargetPersisted, apperrors.InvalidParams)
	}
	if name, dup := duplicateTestName(source.TestCases); dup {
		return nil, nil, apperrors.New(apperrors.DuplicateTestCaseName).WithDetail("name", name)
	}
	if c.hints == nil {
		return nil, nil, apperrors.New(apperrors.InternalServerError).WithMessage("hint cloner is not configured")
	}

	target.TestCases = nil
	target.Tasks = nil
	target.Hints = nil
	target.StaticAnalysisCategories = nil
	target.AuxiliaryRepositories = nil
	target.SubmissionPolicy = nil
	target.ProblemStatement = ""
	if _, err := c.store.CreateExercise(ctx, tx, target); err != nil {
		return nil, nil, cloneErr(err, "persist target exercise")
	}
	ctx = logger.WithExercise(ctx, target.ID)
	remap := model.NewIDRemap()

	steps := []struct {
		name string
		run  func() error
	}{
		{"submission policy", func() error { return c.copySubmissionPolicy(ctx, tx, source, target) }},
		{"test cases", func() error { return c.copyTestCases(ctx, tx, source, target, remap) }},
		{"tasks", func() error { return c.copyTasks(ctx, tx, source, target, remap) }},
		{"hints", func() error { return c.copyHints(ctx, tx, source, target, remap) }},
		{"hint links", func() error { return c.relinkHints(ctx, tx, source, target, remap) }},
		{"solution entries", func() error { return c.copySolutionEntries(ctx, tx, source, target, remap) }},
		{"static analysis categories", func() error { return c.copyCategories(ctx, tx, source, target) }},
		{"auxiliary repositories", func() error { return c.copyAuxiliaryRepositories(ctx, tx, source, target) }},
		{"problem statement", func() error { return c.rewriteStatement(ctx, tx, source, target) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, nil, cloneErr(err, step.name)
		}
	}

	logger.Info(ctx, "exercise content copied",
		zap.Int64("source_exercise_id", source.ID),
		zap.Int("test_cases", len(target.TestCases)),
		zap.Int("tasks", len(target.Tasks)),
		zap.Int("hints", len(target.Hints)),
	)
	return target, remap, nil
}

func (c *Cloner) copySubmissionPolicy(ctx context.Context, tx db.Transaction, source, target *model.Exercise) error {
	if source.SubmissionPolicy == nil {
		return nil
	}
	policy := *source.SubmissionPolicy
	policy.ID = 0
	policy.ExerciseID = target.ID
	if _, err := c.store.CreateSubmissionPolicy(ctx, tx, &policy); err != nil {
		return err
	}
	target.SubmissionPolicy = &policy
	return nil
}

func (c *Cloner) copyTestCases(ctx context.Context, tx db.Transaction, source, target *model.Exercise, remap *model.IDRemap) error {
	for _, tc := range source.TestCases {
		copied := &model.TestCase{
			ExerciseID:      target.ID,
			Name:            tc.Name,
			Active:          tc.Active,
			Visibility:      tc.Visibility,
			Weight:          tc.Weight,
			BonusMultiplier: tc.BonusMultiplier,
			BonusPoints:     tc.BonusPoints,
			Type:            tc.Type,
		}
		id, err := c.store.CreateTestCase(ctx, tx, copied)
		if err != nil {
			return err
		}
		remap.TestCases[tc.ID] = id
		target.TestCases = append(target.TestCases, copied)
	}
	return nil
}

func (c *Cloner) copyTasks(ctx context.Context, tx db.Transaction, source, target *model.Exercise, remap *model.IDRemap) error {
	for _, task := range source.Tasks {
		copied := &model.Task{ExerciseID: target.ID, Name: task.Name}
		for _, oldID := range task.TestCaseIDs {
			newID, ok := remap.TestCases[oldID]
			if !ok {
				skipDangling(ctx, "task test case", oldID)
				continue
			}
			copied.TestCaseIDs = append(copied.TestCaseIDs, newID)
		}
		id, err := c.store.CreateTask(ctx, tx, copied)
		if err != nil {
			return err
		}
		remap.Tasks[task.ID] = id
		target.Tasks = append(target.Tasks, copied)
	}
	return nil
}

func (c *Cloner) copyHints(ctx context.Context, tx db.Transaction, source, target *model.Exercise, remap *model.IDRemap) error {
	hintMap, err := c.hints.CloneHints(ctx, tx, source, target)
	if err != nil {
		return err
	}
	for oldID, newID := range hintMap {
		remap.Hints[oldID] = newID
	}
	return nil
}

func (c *Cloner) relinkHints(ctx context.Context, tx db.Transaction, source, target *model.Exercise, remap *model.IDRemap) error {
	idx := model.IndexExercise(target)
	for _, hint := range source.Hints {
		if hint.TaskID == 0 {
			continue
		}
		newTaskID, ok := remap.Tasks[hint.TaskID]
		if !ok {
			skipDangling(ctx, "hint task", hint.TaskID)
			continue
		}
		newHintID, ok := remap.Hints[hint.ID]
		if !ok {
			skipDangling(ctx, "hint", hint.ID)
			continue
		}
		targetHint, targetTask := idx.Hints[newHintID], idx.Tasks[newTaskID]
		if targetHint == nil || targetTask == nil {
			skipDangling(ctx, "hint task", hint.TaskID)
			continue
		}
		if err := c.store.UpdateHintTask(ctx, tx, newHintID, newTaskID); err != nil {
			return err
		}
		targetHint.TaskID = newTaskID
		targetTask.HintIDs = append(targetTask.HintIDs, newHintID)
	}
	return nil
}

func (c *Cloner) copySolutionEntries(ctx context.Context, tx db.Transaction, source, target *model.Exercise, remap *model.IDRemap) error {
	idx := model.IndexExercise(target)
	for _, tc := range source.TestCases {
		targetTC := idx.TestCases[remap.TestCases[tc.ID]]
		if targetTC == nil {
			skipDangling(ctx, "solution entry test case", tc.ID)
			continue
		}
		for _, entry := range tc.SolutionEntries {
			copied := &model.SolutionEntry{
				TestCaseID:   targetTC.ID,
				FilePath:     entry.FilePath,
				Code:         entry.Code,
				PreviousCode: entry.PreviousCode,
				Line:         entry.Line,
				PreviousLine: entry.PreviousLine,
			}
			var targetHint *model.Hint
			if entry.CodeHintID != 0 {
				if newHintID, ok := remap.Hints[entry.CodeHintID]; ok {
					targetHint = idx.Hints[newHintID]
				}
				if targetHint == nil {
					skipDangling(ctx, "solution entry code hint", entry.CodeHintID)
				} else {
					copied.CodeHintID = targetHint.ID
				}
			}
			id, err := c.store.CreateSolutionEntry(ctx, tx, copied)
			if err != nil {
				return err
			}
			remap.SolutionEntries[entry.ID] = id
			targetTC.SolutionEntries = append(targetTC.SolutionEntries, copied)
			if targetHint != nil {
				targetHint.SolutionEntryIDs = append(targetHint.SolutionEntryIDs, id)
			}
		}
	}
	return nil
}

func (c *Cloner) copyCategories(ctx context.Context, tx db.Transaction, source, target *model.Exercise) error {
	var categories []*model.StaticAnalysisCategory
	switch {
	case source.StaticCodeAnalysisEnabled && target.StaticCodeAnalysisEnabled:
		for _, cat := range source.StaticAnalysisCategories {
			categories = append(categories, &model.StaticAnalysisCategory{
				ExerciseID: target.ID,
				Name:       cat.Name,
				Penalty:    cat.Penalty,
				MaxPenalty: cat.MaxPenalty,
				State:      cat.State,
			})
		}
	case target.StaticCodeAnalysisEnabled:
		categories = DefaultCategories(target.Language, target.ID)
	default:
		return nil
	}
	for _, cat := range categories {
		if _, err := c.store.CreateCategory(ctx, tx, cat); err != nil {
			return err
		}
		target.StaticAnalysisCategories = append(target.StaticAnalysisCategories, cat)
	}
	return nil
}

func (c *Cloner) copyAuxiliaryRepositories(ctx context.Context, tx db.Transaction, source, target *model.Exercise) error {
	for pos, aux := range source.AuxiliaryRepositories {
		copied := &model.AuxiliaryRepository{
			ExerciseID:        target.ID,
			Name:              aux.Name,
			CheckoutDirectory: aux.CheckoutDirectory,
			Description:       aux.Description,
		}
		if _, err := c.store.CreateAuxiliaryRepository(ctx, tx, copied, pos); err != nil {
			return err
		}
		target.AuxiliaryRepositories = append(target.AuxiliaryRepositories, copied)
	}
	return nil
}

func (c *Cloner) rewriteStatement(ctx context.Context, tx db.Transaction, source, target *model.Exercise) error {
	sourceNames := make(map[int64]string, len(source.TestCases))
	for _, tc := range source.TestCases {
		sourceNames[tc.ID] = tc.Name
	}
	targetIDs := make(map[string]int64, len(target.TestCases))
	for _, tc := range target.TestCases {
		targetIDs[tc.Name] = tc.ID
	}
	target.ProblemStatement = statement.RemapTestIDs(source.ProblemStatement, sourceNames, targetIDs)
	return c.store.UpdateExercise(ctx, tx, target)
}

func duplicateTestName(testCases []*model.TestCase) (string, bool) {
	seen := make(map[string]struct{}, len(testCases))
	for _, tc := range testCases {
		if _, ok := seen[tc.Name]; ok {
			return tc.Name, true
		}
		seen[tc.Name] = struct{}{}
	}
	return "", false
}

func skipDangling(ctx context.Context, ref string, sourceID int64) {
	logger.Debug(ctx, "reference to an uncopied entity dropped", zap.String("reference", ref), zap.Int64("source_id", sourceID))
}

func cloneErr(err error, step string) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrapf(err, apperrors.ExerciseCloneFailed, "copy %s: %v", step, err)
}

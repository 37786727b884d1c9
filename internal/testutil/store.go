package testutil

import (
	"context"
	"sort"
	"sync"

	"exforge/internal/common/db"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/repository"
)

// MemoryStore is an in-memory repository.Store. Ids are allocated from a single
// counter starting at 1000 so they never collide with hand written fixture ids.
type MemoryStore struct {
	mu sync.Mutex

	// FailOn makes the named method return the error.
	FailOn map[string]error

	nextID         int64
	exercises      map[int64]*model.Exercise
	policies       map[int64]*model.SubmissionPolicy
	testCases      map[int64]*model.TestCase
	tasks          map[int64]*model.Task
	hints          map[int64]*model.Hint
	entries        map[int64]*model.SolutionEntry
	categories     map[int64]*model.StaticAnalysisCategory
	aux            map[int64]*model.AuxiliaryRepository
	auxPos         map[int64]int
	participations map[int64]*model.Participation
}

var _ repository.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		FailOn:         make(map[string]error),
		nextID:         1000,
		exercises:      make(map[int64]*model.Exercise),
		policies:       make(map[int64]*model.SubmissionPolicy),
		testCases:      make(map[int64]*model.TestCase),
		tasks:          make(map[int64]*model.Task),
		hints:          make(map[int64]*model.Hint),
		entries:        make(map[int64]*model.SolutionEntry),
		categories:     make(map[int64]*model.StaticAnalysisCategory),
		aux:            make(map[int64]*model.AuxiliaryRepository),
		auxPos:         make(map[int64]int),
		participations: make(map[int64]*model.Participation),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) fail(method string) error {
	return s.FailOn[method]
}

// Seed stores a complete graph keeping its ids.
func (s *MemoryStore) Seed(ex *model.Exercise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shell := *ex
	s.exercises[ex.ID] = &shell
	if ex.SubmissionPolicy != nil {
		p := *ex.SubmissionPolicy
		s.policies[p.ID] = &p
	}
	for _, tc := range ex.TestCases {
		c := *tc
		c.SolutionEntries = nil
		s.testCases[c.ID] = &c
		for _, e := range tc.SolutionEntries {
			ec := *e
			s.entries[ec.ID] = &ec
		}
	}
	for _, t := range ex.Tasks {
		c := *t
		c.HintIDs = nil
		s.tasks[c.ID] = &c
	}
	for _, h := range ex.Hints {
		c := *h
		c.SolutionEntryIDs = nil
		s.hints[c.ID] = &c
	}
	for _, c := range ex.StaticAnalysisCategories {
		cc := *c
		s.categories[cc.ID] = &cc
	}
	for i, a := range ex.AuxiliaryRepositories {
		ac := *a
		s.aux[ac.ID] = &ac
		s.auxPos[ac.ID] = i
	}
	for _, p := range []*model.Participation{ex.TemplateParticipation, ex.SolutionParticipation} {
		if p != nil {
			pc := *p
			s.participations[pc.ID] = &pc
		}
	}
}

// AddParticipation stores a participation keeping its id.
func (s *MemoryStore) AddParticipation(p *model.Participation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.participations[c.ID] = &c
}

// Participation returns a copy of the stored participation.
func (s *MemoryStore) Participation(id int64) *model.Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participations[id]; ok {
		c := *p
		return &c
	}
	return nil
}

// ExerciseCount returns the number of stored exercises.
func (s *MemoryStore) ExerciseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exercises)
}

func (s *MemoryStore) CreateExercise(ctx context.Context, tx db.Transaction, ex *model.Exercise) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateExercise"); err != nil {
		return 0, err
	}
	ex.ID = s.id()
	if ex.Kind == 0 {
		ex.Kind = model.KindProgramming
	}
	shell := scalarExercise(ex)
	s.exercises[ex.ID] = shell
	return ex.ID, nil
}

func (s *MemoryStore) UpdateExercise(ctx context.Context, tx db.Transaction, ex *model.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateExercise"); err != nil {
		return err
	}
	if _, ok := s.exercises[ex.ID]; !ok {
		return repository.ErrExerciseNotFound
	}
	s.exercises[ex.ID] = scalarExercise(ex)
	return nil
}

func (s *MemoryStore) GetExercise(ctx context.Context, tx db.Transaction, id int64) (*model.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exercises[id]
	if !ok {
		return nil, repository.ErrExerciseNotFound
	}
	return scalarExercise(ex), nil
}

func (s *MemoryStore) ExerciseExists(ctx context.Context, tx db.Transaction, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.exercises[id]
	return ok, nil
}

func (s *MemoryStore) ProjectKeyExists(ctx context.Context, tx db.Transaction, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.exercises {
		if ex.ProjectKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DeleteExercise(ctx context.Context, tx db.Transaction, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteExercise"); err != nil {
		return err
	}
	if _, ok := s.exercises[id]; !ok {
		return repository.ErrExerciseNotFound
	}
	delete(s.exercises, id)
	for k, v := range s.testCases {
		if v.ExerciseID == id {
			for ek, e := range s.entries {
				if e.TestCaseID == k {
					delete(s.entries, ek)
				}
			}
			delete(s.testCases, k)
		}
	}
	for k, v := range s.tasks {
		if v.ExerciseID == id {
			delete(s.tasks, k)
		}
	}
	for k, v := range s.hints {
		if v.ExerciseID == id {
			delete(s.hints, k)
		}
	}
	for k, v := range s.categories {
		if v.ExerciseID == id {
			delete(s.categories, k)
		}
	}
	for k, v := range s.aux {
		if v.ExerciseID == id {
			delete(s.aux, k)
		}
	}
	for k, v := range s.policies {
		if v.ExerciseID == id {
			delete(s.policies, k)
		}
	}
	for k, v := range s.participations {
		if v.ExerciseID == id {
			delete(s.participations, k)
		}
	}
	return nil
}

func (s *MemoryStore) LoadGraph(ctx context.Context, tx db.Transaction, id int64) (*model.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.exercises[id]
	if !ok {
		return nil, repository.ErrExerciseNotFound
	}
	ex := scalarExercise(stored)
	for _, p := range s.policies {
		if p.ExerciseID == id {
			c := *p
			ex.SubmissionPolicy = &c
		}
	}
	for _, k := range sortedKeys(s.testCases) {
		if tc := s.testCases[k]; tc.ExerciseID == id {
			c := *tc
			ex.TestCases = append(ex.TestCases, &c)
		}
	}
	idx := model.IndexExercise(ex)
	for _, k := range sortedKeys(s.entries) {
		e := s.entries[k]
		if tc, ok := idx.TestCases[e.TestCaseID]; ok {
			c := *e
			tc.SolutionEntries = append(tc.SolutionEntries, &c)
		}
	}
	for _, k := range sortedKeys(s.tasks) {
		if t := s.tasks[k]; t.ExerciseID == id {
			c := *t
			c.TestCaseIDs = append([]int64(nil), t.TestCaseIDs...)
			ex.Tasks = append(ex.Tasks, &c)
		}
	}
	idx = model.IndexExercise(ex)
	for _, k := range sortedKeys(s.hints) {
		if h := s.hints[k]; h.ExerciseID == id {
			c := *h
			if task, ok := idx.Tasks[c.TaskID]; ok {
				task.HintIDs = append(task.HintIDs, c.ID)
			}
			ex.Hints = append(ex.Hints, &c)
		}
	}
	idx = model.IndexExercise(ex)
	for _, tc := range ex.TestCases {
		for _, e := range tc.SolutionEntries {
			if h, ok := idx.Hints[e.CodeHintID]; ok {
				h.SolutionEntryIDs = append(h.SolutionEntryIDs, e.ID)
			}
		}
	}
	for _, k := range sortedKeys(s.categories) {
		if c := s.categories[k]; c.ExerciseID == id {
			cc := *c
			ex.StaticAnalysisCategories = append(ex.StaticAnalysisCategories, &cc)
		}
	}
	var auxIDs []int64
	for k, a := range s.aux {
		if a.ExerciseID == id {
			auxIDs = append(auxIDs, k)
		}
	}
	sort.Slice(auxIDs, func(i, j int) bool { return s.auxPos[auxIDs[i]] < s.auxPos[auxIDs[j]] })
	for _, k := range auxIDs {
		c := *s.aux[k]
		ex.AuxiliaryRepositories = append(ex.AuxiliaryRepositories, &c)
	}
	for _, k := range sortedKeys(s.participations) {
		p := s.participations[k]
		if p.ExerciseID != id {
			continue
		}
		c := *p
		switch p.Type {
		case model.ParticipationTemplate:
			ex.TemplateParticipation = &c
		case model.ParticipationSolution:
			ex.SolutionParticipation = &c
		}
	}
	return ex, nil
}

func (s *MemoryStore) CreateSubmissionPolicy(ctx context.Context, tx db.Transaction, p *model.SubmissionPolicy) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateSubmissionPolicy"); err != nil {
		return 0, err
	}
	p.ID = s.id()
	c := *p
	s.policies[p.ID] = &c
	return p.ID, nil
}

func (s *MemoryStore) CreateTestCase(ctx context.Context, tx db.Transaction, tc *model.TestCase) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateTestCase"); err != nil {
		return 0, err
	}
	tc.ID = s.id()
	c := *tc
	c.SolutionEntries = nil
	s.testCases[tc.ID] = &c
	return tc.ID, nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, tx db.Transaction, task *model.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateTask"); err != nil {
		return 0, err
	}
	task.ID = s.id()
	c := *task
	c.TestCaseIDs = append([]int64(nil), task.TestCaseIDs...)
	c.HintIDs = nil
	s.tasks[task.ID] = &c
	return task.ID, nil
}

func (s *MemoryStore) DeleteTasks(ctx context.Context, tx db.Transaction, exerciseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteTasks"); err != nil {
		return err
	}
	for _, h := range s.hints {
		if h.ExerciseID == exerciseID {
			h.TaskID = 0
		}
	}
	for k, t := range s.tasks {
		if t.ExerciseID == exerciseID {
			delete(s.tasks, k)
		}
	}
	return nil
}

func (s *MemoryStore) CreateHint(ctx context.Context, tx db.Transaction, hint *model.Hint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateHint"); err != nil {
		return 0, err
	}
	hint.ID = s.id()
	c := *hint
	c.SolutionEntryIDs = nil
	s.hints[hint.ID] = &c
	return hint.ID, nil
}

func (s *MemoryStore) UpdateHintTask(ctx context.Context, tx db.Transaction, hintID, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateHintTask"); err != nil {
		return err
	}
	h, ok := s.hints[hintID]
	if !ok {
		return repository.ErrHintNotFound
	}
	h.TaskID = taskID
	return nil
}

func (s *MemoryStore) CreateSolutionEntry(ctx context.Context, tx db.Transaction, e *model.SolutionEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateSolutionEntry"); err != nil {
		return 0, err
	}
	e.ID = s.id()
	c := *e
	s.entries[e.ID] = &c
	return e.ID, nil
}

func (s *MemoryStore) CreateCategory(ctx context.Context, tx db.Transaction, cat *model.StaticAnalysisCategory) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateCategory"); err != nil {
		return 0, err
	}
	cat.ID = s.id()
	c := *cat
	s.categories[cat.ID] = &c
	return cat.ID, nil
}

func (s *MemoryStore) DeleteCategories(ctx context.Context, tx db.Transaction, exerciseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.categories {
		if c.ExerciseID == exerciseID {
			delete(s.categories, k)
		}
	}
	return nil
}

func (s *MemoryStore) CreateAuxiliaryRepository(ctx context.Context, tx db.Transaction, aux *model.AuxiliaryRepository, position int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateAuxiliaryRepository"); err != nil {
		return 0, err
	}
	aux.ID = s.id()
	c := *aux
	s.aux[aux.ID] = &c
	s.auxPos[aux.ID] = position
	return aux.ID, nil
}

func (s *MemoryStore) UpdateAuxiliaryRepositoryURI(ctx context.Context, tx db.Transaction, auxID int64, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.aux[auxID]
	if !ok {
		return repository.ErrAuxiliaryNotFound
	}
	a.RepositoryURI = uri
	return nil
}

func (s *MemoryStore) CreateParticipation(ctx context.Context, tx db.Transaction, p *model.Participation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateParticipation"); err != nil {
		return 0, err
	}
	p.ID = s.id()
	if p.State == "" {
		p.State = model.StateUninitialized
	}
	c := *p
	s.participations[p.ID] = &c
	return p.ID, nil
}

func (s *MemoryStore) UpdateParticipation(ctx context.Context, tx db.Transaction, p *model.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateParticipation"); err != nil {
		return err
	}
	if _, ok := s.participations[p.ID]; !ok {
		return repository.ErrParticipationNotFound
	}
	c := *p
	s.participations[p.ID] = &c
	return nil
}

func (s *MemoryStore) GetParticipation(ctx context.Context, tx db.Transaction, id int64) (*model.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participations[id]
	if !ok {
		return nil, repository.ErrParticipationNotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) ListStudentParticipations(ctx context.Context, tx db.Transaction, exerciseID int64) ([]*model.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Participation
	for _, k := range sortedKeys(s.participations) {
		p := s.participations[k]
		if p.ExerciseID == exerciseID && p.Type == model.ParticipationStudent {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) SetLocked(ctx context.Context, tx db.Transaction, ids []int64, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetLocked"); err != nil {
		return err
	}
	for _, id := range ids {
		if p, ok := s.participations[id]; ok {
			p.Locked = locked
		}
	}
	return nil
}

func scalarExercise(ex *model.Exercise) *model.Exercise {
	c := *ex
	c.SubmissionPolicy = nil
	c.TestCases = nil
	c.Tasks = nil
	c.Hints = nil
	c.StaticAnalysisCategories = nil
	c.AuxiliaryRepositories = nil
	c.TemplateParticipation = nil
	c.SolutionParticipation = nil
	return &c
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

package model

// GraphIndex holds id keyed lookups over one exercise's content graph.
// Cross references between entities are ids resolved through the index.
type GraphIndex struct {
	TestCases       map[int64]*TestCase
	TestCasesByName map[string]*TestCase
	Tasks           map[int64]*Task
	Hints           map[int64]*Hint
	SolutionEntries map[int64]*SolutionEntry
}

// IndexExercise builds a GraphIndex over the loaded collections of ex.
func IndexExercise(ex *Exercise) *GraphIndex {
	idx := &GraphIndex{
		TestCases:       make(map[int64]*TestCase, len(ex.TestCases)),
		TestCasesByName: make(map[string]*TestCase, len(ex.TestCases)),
		Tasks:           make(map[int64]*Task, len(ex.Tasks)),
		Hints:           make(map[int64]*Hint, len(ex.Hints)),
		SolutionEntries: make(map[int64]*SolutionEntry),
	}
	for _, tc := range ex.TestCases {
		idx.TestCases[tc.ID] = tc
		idx.TestCasesByName[tc.Name] = tc
		for _, entry := range tc.SolutionEntries {
			idx.SolutionEntries[entry.ID] = entry
		}
	}
	for _, task := range ex.Tasks {
		idx.Tasks[task.ID] = task
	}
	for _, hint := range ex.Hints {
		idx.Hints[hint.ID] = hint
	}
	return idx
}

// IDRemap maps source entity ids to the ids of their copies.
type IDRemap struct {
	TestCases       map[int64]int64
	Tasks           map[int64]int64
	Hints           map[int64]int64
	SolutionEntries map[int64]int64
}

// NewIDRemap returns an empty remap.
func NewIDRemap() *IDRemap {
	return &IDRemap{
		TestCases:       make(map[int64]int64),
		Tasks:           make(map[int64]int64),
		Hints:           make(map[int64]int64),
		SolutionEntries: make(map[int64]int64),
	}
}

// TestCaseNames resolves the old test case ids of the remap to the new test case names.
func (r *IDRemap) TestCaseNames(target *GraphIndex) map[string]int64 {
	out := make(map[string]int64, len(r.TestCases))
	for _, newID := range r.TestCases {
		if tc, ok := target.TestCases[newID]; ok {
			out[tc.Name] = newID
		}
	}
	return out
}

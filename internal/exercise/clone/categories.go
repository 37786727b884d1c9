package clone

import "exforge/internal/exercise/model"

type categoryDefault struct {
	name       string
	penalty    float64
	maxPenalty float64
	state      model.CategoryState
}

var defaultCategories = map[model.ProgrammingLanguage][]categoryDefault{
	model.LanguageJava: {
		{"Bad Practice", 0.5, 5, model.CategoryGraded},
		{"Code Style", 0.2, 2, model.CategoryFeedback},
		{"Potential Bugs", 0.5, 5, model.CategoryGraded},
		{"Duplicated Code", 0.5, 3, model.CategoryFeedback},
		{"Security", 1, 5, model.CategoryGraded},
		{"Performance", 0.2, 2, model.CategoryFeedback},
		{"Design", 0.5, 5, model.CategoryFeedback},
		{"Code Quality", 0.2, 2, model.CategoryInactive},
		{"Miscellaneous", 0, 0, model.CategoryInactive},
	},
	model.LanguageKotlin: {
		{"Bad Practice", 0.5, 5, model.CategoryGraded},
		{"Code Style", 0.2, 2, model.CategoryFeedback},
		{"Potential Bugs", 0.5, 5, model.CategoryGraded},
		{"Complexity", 0.5, 3, model.CategoryFeedback},
		{"Naming", 0.2, 2, model.CategoryFeedback},
		{"Miscellaneous", 0, 0, model.CategoryInactive},
	},
	model.LanguageSwift: {
		{"Bad Practice", 0.5, 5, model.CategoryGraded},
		{"Code Style", 0.2, 2, model.CategoryFeedback},
		{"Potential Bugs", 0.5, 5, model.CategoryGraded},
		{"Security", 1, 5, model.CategoryGraded},
		{"Performance", 0.2, 2, model.CategoryFeedback},
		{"Design", 0.5, 5, model.CategoryFeedback},
		{"Code Quality", 0.2, 2, model.CategoryInactive},
		{"Documentation", 0.1, 1, model.CategoryFeedback},
		{"Naming & Format", 0.1, 1, model.CategoryFeedback},
		{"Miscellaneous", 0, 0, model.CategoryInactive},
	},
	model.LanguageC: {
		{"Bad Practice", 0.5, 5, model.CategoryGraded},
		{"Memory Management", 1, 5, model.CategoryGraded},
		{"Undefined Behavior", 1, 5, model.CategoryGraded},
		{"Security", 1, 5, model.CategoryGraded},
		{"Potential Bugs", 0.5, 5, model.CategoryFeedback},
		{"Miscellaneous", 0, 0, model.CategoryInactive},
	},
	model.LanguagePython: {
		{"Bad Practice", 0.5, 5, model.CategoryGraded},
		{"Code Style", 0.2, 2, model.CategoryFeedback},
		{"Complexity", 0.5, 3, model.CategoryFeedback},
		{"Duplicated Code", 0.5, 3, model.CategoryFeedback},
		{"Formatting", 0.1, 1, model.CategoryFeedback},
		{"Naming", 0.2, 2, model.CategoryFeedback},
		{"Potential Bugs", 0.5, 5, model.CategoryGraded},
		{"Security", 1, 5, model.CategoryGraded},
		{"Miscellaneous", 0, 0, model.CategoryInactive},
	},
}

// SupportsStaticAnalysis reports whether static code analysis can be enabled for lang.
func SupportsStaticAnalysis(lang model.ProgrammingLanguage) bool {
	_, ok := defaultCategories[lang]
	return ok
}

// DefaultCategories returns fresh, unpersisted default categories for lang.
func DefaultCategories(lang model.ProgrammingLanguage, exerciseID int64) []*model.StaticAnalysisCategory {
	defaults := defaultCategories[lang]
	out := make([]*model.StaticAnalysisCategory, 0, len(defaults))
	for _, d := range defaults {
		out = append(out, &model.StaticAnalysisCategory{
			ExerciseID: exerciseID,
			Name:       d.name,
			Penalty:    d.penalty,
			MaxPenalty: d.maxPenalty,
			State:      d.state,
		})
	}
	return out
}

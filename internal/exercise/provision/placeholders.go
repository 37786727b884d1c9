package provision

import (
	"strings"

	"exforge/internal/exercise/model"
	"exforge/internal/exercise/vcs"
)

// Template variables understood in repositories seeded from an archive or template.
const (
	varPackageName       = "${packageName}"
	varPackageNameFolder = "${packageNameFolder}"
	varExerciseName      = "${exerciseName}"
	varArtifactID        = "${artifactId}"
	varProjectKey        = "${projectKey}"
)

// ArtifactID is the build-file artifact name derived from the exercise title.
func ArtifactID(title string) string {
	return strings.Join(strings.Fields(title), "-")
}

func packageFolder(packageName string) string {
	return strings.ReplaceAll(packageName, ".", "/")
}

func usesPackages(lang model.ProgrammingLanguage) bool {
	return lang == model.LanguageJava || lang == model.LanguageKotlin
}

// ImportReplacements rewrites names of source into the names of target. Longer
// and more specific values come first.
func ImportReplacements(source, target *model.Exercise) []vcs.Replacement {
	var out []vcs.Replacement
	add := func(from, to string) {
		if from == "" || to == "" || from == to {
			return
		}
		for _, r := range out {
			if r.Old == from {
				return
			}
		}
		out = append(out, vcs.Replacement{Old: from, New: to})
	}
	if usesPackages(target.Language) {
		add(source.PackageName, target.PackageName)
		add(packageFolder(source.PackageName), packageFolder(target.PackageName))
	}
	add(ArtifactID(source.Title), ArtifactID(target.Title))
	add(source.Title, target.Title)
	add(source.ProjectKey, target.ProjectKey)
	return out
}

// TemplateReplacements fills the template variables with the values of exercise.
func TemplateReplacements(exercise *model.Exercise) []vcs.Replacement {
	out := []vcs.Replacement{
		{Old: varArtifactID, New: ArtifactID(exercise.Title)},
		{Old: varExerciseName, New: exercise.Title},
		{Old: varProjectKey, New: exercise.ProjectKey},
	}
	if usesPackages(exercise.Language) && exercise.PackageName != "" {
		out = append(out,
			vcs.Replacement{Old: varPackageNameFolder, New: packageFolder(exercise.PackageName)},
			vcs.Replacement{Old: varPackageName, New: exercise.PackageName},
		)
	}
	return out
}

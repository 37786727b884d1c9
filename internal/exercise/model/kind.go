package model

import "fmt"

// ExerciseKind is the closed set of exercise variants.
type ExerciseKind int

const (
	KindProgramming ExerciseKind = iota + 1
	KindText
	KindModeling
	KindFileUpload
	KindQuiz
)

func (k ExerciseKind) String() string {
	switch k {
	case KindProgramming:
		return "programming"
	case KindText:
		return "text"
	case KindModeling:
		return "modeling"
	case KindFileUpload:
		return "file-upload"
	case KindQuiz:
		return "quiz"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HasRepositories reports whether exercises of this kind own VCS repositories and build plans.
func (k ExerciseKind) HasRepositories() bool {
	switch k {
	case KindProgramming:
		return true
	case KindText, KindModeling, KindFileUpload, KindQuiz:
		return false
	default:
		return false
	}
}

// ParseExerciseKind is the inverse of String.
func ParseExerciseKind(s string) (ExerciseKind, error) {
	for _, k := range []ExerciseKind{KindProgramming, KindText, KindModeling, KindFileUpload, KindQuiz} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown exercise kind %q", s)
}

// ProgrammingLanguage identifies the language of a programming exercise.
type ProgrammingLanguage string

const (
	LanguageJava    ProgrammingLanguage = "JAVA"
	LanguageKotlin  ProgrammingLanguage = "KOTLIN"
	LanguagePython  ProgrammingLanguage = "PYTHON"
	LanguageC       ProgrammingLanguage = "C"
	LanguageSwift   ProgrammingLanguage = "SWIFT"
	LanguageHaskell ProgrammingLanguage = "HASKELL"
	LanguageOCaml   ProgrammingLanguage = "OCAML"
	LanguageEmpty   ProgrammingLanguage = "EMPTY"
)

// ProjectType selects the build layout inside the repositories.
type ProjectType string

const (
	ProjectTypeMavenMaven   ProjectType = "MAVEN_MAVEN"
	ProjectTypePlainMaven   ProjectType = "PLAIN_MAVEN"
	ProjectTypeGradleGradle ProjectType = "GRADLE_GRADLE"
	ProjectTypePlainGradle  ProjectType = "PLAIN_GRADLE"
	ProjectTypeXcode        ProjectType = "XCODE"
	ProjectTypePlain        ProjectType = "PLAIN"
	ProjectTypeGCC          ProjectType = "GCC"
	ProjectTypeFact         ProjectType = "FACT"
)

// IsMaven reports whether the build file is a pom.xml.
func (p ProjectType) IsMaven() bool {
	return p == ProjectTypeMavenMaven || p == ProjectTypePlainMaven
}

// IsGradle reports whether the build file is a build.gradle.
func (p ProjectType) IsGradle() bool {
	return p == ProjectTypeGradleGradle || p == ProjectTypePlainGradle
}

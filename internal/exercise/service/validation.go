package service

import (
	"regexp"
	"strings"

	"exforge/internal/exercise/clone"
	"exforge/internal/exercise/model"
	pkgerrors "exforge/pkg/errors"
)

var (
	javaPackagePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	swiftPackagePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	shortNamePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
)

var javaKeywords = map[string]struct{}{
	"abstract": {}, "assert": {}, "boolean": {}, "break": {}, "byte": {}, "case": {}, "catch": {},
	"char": {}, "class": {}, "const": {}, "continue": {}, "default": {}, "do": {}, "double": {},
	"else": {}, "enum": {}, "extends": {}, "final": {}, "finally": {}, "float": {}, "for": {},
	"goto": {}, "if": {}, "implements": {}, "import": {}, "instanceof": {}, "int": {},
	"interface": {}, "long": {}, "native": {}, "new": {}, "package": {}, "private": {},
	"protected": {}, "public": {}, "return": {}, "short": {}, "static": {}, "strictfp": {},
	"super": {}, "switch": {}, "synchronized": {}, "this": {}, "throw": {}, "throws": {},
	"transient": {}, "try": {}, "void": {}, "volatile": {}, "while": {}, "true": {},
	"false": {}, "null": {},
}

// ValidateSettings checks the configuration of a programming exercise before
// anything is provisioned.
func ValidateSettings(ex *model.Exercise) error {
	if ex == nil {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	if !ex.Kind.HasRepositories() {
		return pkgerrors.New(pkgerrors.InvalidParams).WithMessage("only programming exercises can be provisioned")
	}
	if strings.TrimSpace(ex.Title) == "" {
		return pkgerrors.ValidationError("title", "title is required")
	}
	if !shortNamePattern.MatchString(ex.ShortName) {
		return pkgerrors.New(pkgerrors.InvalidShortName).WithDetail("shortName", ex.ShortName)
	}
	if err := validatePackageName(ex.Language, ex.PackageName); err != nil {
		return err
	}
	switch ex.Language {
	case model.LanguageJava, model.LanguageKotlin:
		if ex.ProjectType == "" {
			return pkgerrors.New(pkgerrors.ProjectTypeRequired).WithDetail("language", string(ex.Language))
		}
	}
	if ex.StaticCodeAnalysisEnabled && !clone.SupportsStaticAnalysis(ex.Language) {
		return pkgerrors.New(pkgerrors.StaticAnalysisNotSupported).WithDetail("language", string(ex.Language))
	}
	if ex.MaxStaticCodeAnalysisPenalty != nil {
		if p := *ex.MaxStaticCodeAnalysisPenalty; p < 0 || p > 100 {
			return pkgerrors.ValidationError("maxStaticCodeAnalysisPenalty", "must be between 0 and 100")
		}
	}
	return validateTiming(ex)
}

func validatePackageName(lang model.ProgrammingLanguage, name string) error {
	switch lang {
	case model.LanguageJava, model.LanguageKotlin:
		if !javaPackagePattern.MatchString(name) {
			return pkgerrors.New(pkgerrors.InvalidPackageName).WithDetail("packageName", name)
		}
		for _, segment := range strings.Split(name, ".") {
			if _, reserved := javaKeywords[segment]; reserved {
				return pkgerrors.New(pkgerrors.InvalidPackageName).WithDetail("packageName", name)
			}
		}
	case model.LanguageSwift:
		if !swiftPackagePattern.MatchString(name) {
			return pkgerrors.New(pkgerrors.InvalidPackageName).WithDetail("packageName", name)
		}
	}
	return nil
}

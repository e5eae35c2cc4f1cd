package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report yaml key names instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(validateConfig, Config{})
}

// validateConfig checks rules that span sections.
func validateConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	switch cfg.Source.Kind {
	case "git":
		if cfg.Git.SourceRef == "" {
			sl.ReportError(cfg.Git.SourceRef, "git.source_ref", "SourceRef", "required_for_git_source", "")
		}
		if cfg.Git.TargetBranch == "" {
			sl.ReportError(cfg.Git.TargetBranch, "git.target_branch", "TargetBranch", "required_for_git_source", "")
		}
	case "dir":
		if cfg.Source.PatchDir == "" {
			sl.ReportError(cfg.Source.PatchDir, "source.patch_dir", "PatchDir", "required_for_dir_source", "")
		}
		if cfg.Git.Mode == "cherry-pick" {
			sl.ReportError(cfg.Git.Mode, "git.mode", "Mode", "cherry_pick_needs_git_source", "")
		}
	}

	if cfg.Check.Use != "" {
		if _, ok := cfg.Check.Commands[cfg.Check.Use]; !ok {
			sl.ReportError(cfg.Check.Use, "check.use", "Use", "unknown_check", cfg.Check.Use)
		}
	} else if len(cfg.Check.Commands) > 1 {
		sl.ReportError(cfg.Check.Use, "check.use", "Use", "required_with_several_checks", "")
	}
}

// Validate checks a Config. All problems are reported in one Error.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Message: "validation failed", Err: err}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return &Error{Message: "invalid configuration: " + strings.Join(msgs, "; ")}
}

// describe renders one failure as "field: reason".
func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	// Struct-level errors carry the full path as their field name.
	if strings.Contains(fe.Field(), ".") {
		field = fe.Field()
	}

	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "oneof":
		reason = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		reason = fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		reason = fmt.Sprintf("must be greater than %s", fe.Param())
	case "required_for_git_source":
		reason = "is required when source.kind is git"
	case "required_for_dir_source":
		reason = "is required when source.kind is dir"
	case "cherry_pick_needs_git_source":
		reason = "cherry-pick needs source.kind git"
	case "unknown_check":
		reason = fmt.Sprintf("names no command in check.commands (%q)", fe.Param())
	case "required_with_several_checks":
		reason = "is required when check.commands holds more than one command"
	default:
		reason = fmt.Sprintf("failed %q", fe.Tag())
	}
	return field + " " + reason
}

package lex

import (
	"fmt"
	"strings"
	"unicode"
)

// Config holds all configuration options for a Parser.
type Config struct {
	// ScopeGlue separates the segments of a variable path, as in `user.name`.
	ScopeGlue string `json:"scope_glue"`

	// CallbackGlue separates the segments of a callback name, as in
	// `content:snippet`. A tag name containing it is a callback tag.
	CallbackGlue string `json:"callback_glue"`

	// CumulativeNoparse keeps noparse regions behind placeholders in the output
	// of Parse so further passes can run over the same document. The regions
	// are restored by InjectNoparse.
	CumulativeNoparse bool `json:"cumulative_noparse"`

	// MaxDepth is the deepest nesting of loop items and callback re-renders a
	// single Parse call may reach before failing with a RecursionLimitError.
	MaxDepth int `json:"max_depth"`

	// MergeGlobalData makes names that a loop item does not define fall back
	// to the Global Data of the call.
	MergeGlobalData bool `json:"merge_global_data"`
}

// DefaultConfig returns a Config with the conventional Lex settings.
func DefaultConfig() Config {
	return Config{
		ScopeGlue:         ".",
		CallbackGlue:      ":",
		CumulativeNoparse: false,
		MaxDepth:          32,
		MergeGlobalData:   false,
	}
}

// Validate reports whether the configuration can be used to build a Parser.
func (c Config) Validate() error {
	if err := validateGlue("scope glue", c.ScopeGlue); err != nil {
		return err
	}
	if err := validateGlue("callback glue", c.CallbackGlue); err != nil {
		return err
	}
	if strings.ContainsAny(c.ScopeGlue, c.CallbackGlue) {
		return fmt.Errorf("scope glue %q and callback glue %q must not share characters", c.ScopeGlue, c.CallbackGlue)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

func validateGlue(label, glue string) error {
	if glue == "" {
		return fmt.Errorf("%s must not be empty", label)
	}
	for _, r := range glue {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune(`{}/"'=()!<>&|`, r) {
			return fmt.Errorf("%s %q contains reserved character %q", label, glue, r)
		}
	}
	return nil
}

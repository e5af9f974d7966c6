// Package contract models the declarative verification contract attached to
// each mission. A contract carries exactly one strategy; the validator is the
// single place that enforces which fields are valid together.
package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind string

const (
	KindEvidence      Kind = "evidence"
	KindScriptOutput  Kind = "script_output"
	KindLLMEvaluation Kind = "llm_evaluation"
)

// Source binds a contract to a repository and a per-student base path. The
// base_path template must contain the {slug} token.
type Source struct {
	Repository    string `json:"repository,omitempty"`
	Branch        string `json:"branch,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
	BasePath      string `json:"base_path"`
}

// Ref returns the branch the contract pins, or "" for the repository default.
func (s Source) Ref() string {
	if b := strings.TrimSpace(s.Branch); b != "" {
		return b
	}
	return strings.TrimSpace(s.DefaultBranch)
}

// Deliverable is one checkable artifact within an evidence contract.
type Deliverable struct {
	Type         string `json:"type"` // file_exists | file_contains
	Path         string `json:"path"`
	Content      string `json:"content,omitempty"`
	FeedbackFail string `json:"feedback_fail,omitempty"`
}

const (
	RuleFileExists   = "file_exists"
	RuleFileContains = "file_contains"
)

type Contract struct {
	Kind   Kind   `json:"verification_type"`
	Source Source `json:"source"`

	// evidence
	Deliverables []Deliverable `json:"deliverables,omitempty"`

	// script_output
	ScriptPath                  string   `json:"script_path,omitempty"`
	RequiredFiles               []string `json:"required_files,omitempty"`
	SuccessMarker               string   `json:"success_marker,omitempty"`
	FeedbackScriptMissing       string   `json:"feedback_script_missing,omitempty"`
	FeedbackRequiredFileMissing string   `json:"feedback_required_file_missing,omitempty"`

	// llm_evaluation
	ContentPath  string   `json:"content_path,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Criteria     []string `json:"criteria,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// Parse decodes and validates a contract document.
func Parse(raw []byte) (*Contract, error) {
	var c Contract
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("contract: invalid JSON: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate enforces the structural invariants at write time so invalid
// contracts are rejected by the administration path, never discovered during
// a verification run.
func (c *Contract) Validate() error {
	switch c.Kind {
	case KindEvidence, KindScriptOutput, KindLLMEvaluation:
	case "":
		return fmt.Errorf("contract: verification_type is required")
	default:
		return fmt.Errorf("contract: unknown verification_type %q", c.Kind)
	}

	if !strings.Contains(c.Source.BasePath, "{slug}") {
		return fmt.Errorf("contract: source.base_path must contain the {slug} token")
	}
	if err := checkPath(c.Source.BasePath); err != nil {
		return fmt.Errorf("contract: source.base_path: %w", err)
	}

	if err := c.checkStrategyFields(); err != nil {
		return err
	}

	switch c.Kind {
	case KindEvidence:
		if len(c.Deliverables) == 0 {
			return fmt.Errorf("contract: evidence requires at least one deliverable")
		}
		for i, d := range c.Deliverables {
			switch d.Type {
			case RuleFileExists:
			case RuleFileContains:
				if strings.TrimSpace(d.Content) == "" {
					return fmt.Errorf("contract: deliverable %d: file_contains requires non-empty content", i)
				}
			default:
				return fmt.Errorf("contract: deliverable %d: unknown type %q", i, d.Type)
			}
			if strings.TrimSpace(d.Path) == "" {
				return fmt.Errorf("contract: deliverable %d: path is required", i)
			}
			if err := checkPath(d.Path); err != nil {
				return fmt.Errorf("contract: deliverable %d: %w", i, err)
			}
		}
	case KindScriptOutput:
		if strings.TrimSpace(c.ScriptPath) == "" {
			return fmt.Errorf("contract: script_output requires script_path")
		}
		if err := checkPath(c.ScriptPath); err != nil {
			return fmt.Errorf("contract: script_path: %w", err)
		}
		for i, rel := range c.RequiredFiles {
			if err := checkPath(rel); err != nil {
				return fmt.Errorf("contract: required_files %d: %w", i, err)
			}
		}
	case KindLLMEvaluation:
		if strings.TrimSpace(c.ContentPath) == "" {
			return fmt.Errorf("contract: llm_evaluation requires content_path")
		}
		if err := checkPath(c.ContentPath); err != nil {
			return fmt.Errorf("contract: content_path: %w", err)
		}
	}
	return nil
}

// checkPath rejects traversal at write time; the source client re-checks at
// fetch time, but an admin typo should fail here, not during a student's run.
func checkPath(p string) error {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return fmt.Errorf("path %q escapes the submission root", p)
		}
	}
	return nil
}

// checkStrategyFields rejects contracts mixing fields from more than one
// strategy, keeping "exactly one strategy" a load-time invariant.
func (c *Contract) checkStrategyFields() error {
	evidence := len(c.Deliverables) > 0
	script := c.ScriptPath != "" || len(c.RequiredFiles) > 0 || c.SuccessMarker != "" ||
		c.FeedbackScriptMissing != "" || c.FeedbackRequiredFileMissing != ""
	llm := c.ContentPath != "" || len(c.Keywords) > 0 || len(c.Criteria) > 0 || c.Instructions != ""

	var present int
	for _, ok := range []bool{evidence, script, llm} {
		if ok {
			present++
		}
	}
	if present > 1 {
		return fmt.Errorf("contract: fields from multiple strategies present; declare exactly one")
	}
	switch {
	case evidence && c.Kind != KindEvidence,
		script && c.Kind != KindScriptOutput,
		llm && c.Kind != KindLLMEvaluation:
		return fmt.Errorf("contract: strategy fields do not match verification_type %q", c.Kind)
	}
	return nil
}

// Package verify coordinates one verification attempt: it resolves the
// contract for a (student, mission) pair, dispatches to the declared
// strategy, and persists the completion on success. Configuration problems
// and remote failures become failed verdicts; nothing here panics on bad
// input.
package verify

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/portalkids/portal-api/src/portal/contract"
	"github.com/portalkids/portal-api/src/portal/data"
	"github.com/portalkids/portal-api/src/portal/source"
	"github.com/portalkids/portal-api/src/portal/types"
)

type StudentStore interface {
	Get(slug string) (*types.Student, error)
}

type MissionStore interface {
	Get(id uint32) (*types.Mission, error)
}

type CompletionStore interface {
	Record(slug string, missionID uint32) error
}

// ScriptRunner executes a script_output contract.
type ScriptRunner interface {
	Run(ctx context.Context, acc *source.Accessor, c *contract.Contract) types.Verdict
}

// LLMEvaluator grades an llm_evaluation contract.
type LLMEvaluator interface {
	Evaluate(ctx context.Context, acc *source.Accessor, c *contract.Contract) types.Verdict
}

type Orchestrator struct {
	students    StudentStore
	missions    MissionStore
	completions CompletionStore
	fetcher     source.Fetcher
	scripts     ScriptRunner
	llm         LLMEvaluator
}

func NewOrchestrator(students StudentStore, missions MissionStore, completions CompletionStore,
	fetcher source.Fetcher, scripts ScriptRunner, llm LLMEvaluator) *Orchestrator {
	return &Orchestrator{
		students:    students,
		missions:    missions,
		completions: completions,
		fetcher:     fetcher,
		scripts:     scripts,
		llm:         llm,
	}
}

// Verify runs one synchronous verification attempt and returns its verdict.
// Unknown students and missions are failed verdicts, not errors; only
// programmer errors may escape to the request layer as a panic.
func (o *Orchestrator) Verify(ctx context.Context, slug string, missionID uint32) types.Verdict {
	attempt := uuid.NewString()
	log.Printf("verify %s: student=%s mission=%d", attempt, slug, missionID)

	student, err := o.students.Get(slug)
	switch {
	case errors.Is(err, data.ErrNotFound):
		return types.Fail("El estudiante no está registrado en el portal. Contacta a tu instructor.")
	case err != nil:
		log.Printf("verify %s: student lookup: %v", attempt, err)
		return types.Fail("No se pudo cargar la información del estudiante. Inténtalo de nuevo más tarde.")
	}

	mission, err := o.missions.Get(missionID)
	switch {
	case errors.Is(err, data.ErrNotFound):
		return types.Fail("La misión solicitada no existe. Contacta a tu instructor.")
	case err != nil:
		log.Printf("verify %s: mission lookup: %v", attempt, err)
		return types.Fail("No se pudo cargar la misión. Inténtalo de nuevo más tarde.")
	}

	c, err := contract.Parse([]byte(mission.Contract))
	if err != nil {
		log.Printf("verify %s: contract: %v", attempt, err)
		return types.Fail("La misión no tiene un contrato de verificación válido. Contacta a tu instructor.")
	}

	acc := o.accessorFor(student, c)

	var verdict types.Verdict
	switch c.Kind {
	case contract.KindEvidence:
		verdict = EvaluateEvidence(ctx, acc, c)
	case contract.KindScriptOutput:
		verdict = o.scripts.Run(ctx, acc, c)
	case contract.KindLLMEvaluation:
		verdict = o.llm.Evaluate(ctx, acc, c)
	}

	if verdict.Verified {
		if err := o.completions.Record(student.Slug, missionID); err != nil {
			log.Printf("verify %s: record completion: %v", attempt, err)
			return types.Fail("La verificación pasó pero no se pudo registrar. Inténtalo de nuevo.")
		}
	}
	log.Printf("verify %s: verified=%t feedback=%d", attempt, verdict.Verified, len(verdict.Feedback))
	return verdict
}

// accessorFor builds the per-attempt repository view. A contract that asks
// for the "default" repository falls back to the student's role binding when
// one exists, so shared contracts work across role-specific repositories.
func (o *Orchestrator) accessorFor(student *types.Student, c *contract.Contract) *source.Accessor {
	key := strings.ToLower(strings.TrimSpace(c.Source.Repository))
	if key == "" {
		key = "default"
	}
	if key == "default" {
		if roleKey := strings.ToLower(strings.TrimSpace(student.Role)); roleKey != "" && o.fetcher.Has(roleKey) {
			key = roleKey
		}
	}
	basePath := source.ResolveBasePath(c.Source.BasePath, student.Slug)
	return source.NewAccessor(o.fetcher, key, c.Source.Ref(), basePath)
}

package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/portalkids/portal-api/src/portal/contract"
	"github.com/portalkids/portal-api/src/portal/data"
	"github.com/portalkids/portal-api/src/portal/source"
	"github.com/portalkids/portal-api/src/portal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStudents map[string]*types.Student

func (f fakeStudents) Get(slug string) (*types.Student, error) {
	if s, ok := f[slug]; ok {
		return s, nil
	}
	return nil, data.ErrNotFound
}

type fakeMissions map[uint32]*types.Mission

func (f fakeMissions) Get(id uint32) (*types.Mission, error) {
	if m, ok := f[id]; ok {
		return m, nil
	}
	return nil, data.ErrNotFound
}

type fakeCompletions struct {
	records map[string]int
}

func (f *fakeCompletions) Record(slug string, missionID uint32) error {
	if f.records == nil {
		f.records = map[string]int{}
	}
	f.records[key(slug, missionID)]++
	return nil
}

func key(slug string, id uint32) string {
	return fmt.Sprintf("%s/%d", slug, id)
}

type stubRunner struct {
	verdict types.Verdict
	calls   int
}

func (s *stubRunner) Run(context.Context, *source.Accessor, *contract.Contract) types.Verdict {
	s.calls++
	return s.verdict
}

type stubLLM struct {
	verdict types.Verdict
	calls   int
}

func (s *stubLLM) Evaluate(context.Context, *source.Accessor, *contract.Contract) types.Verdict {
	s.calls++
	return s.verdict
}

func mustJSON(t *testing.T, c contract.Contract) string {
	t.Helper()
	raw, err := json.Marshal(c)
	require.NoError(t, err)
	return string(raw)
}

func newOrchestrator(students fakeStudents, missions fakeMissions, completions *fakeCompletions,
	fetcher *fakeFetcher, runner *stubRunner, llm *stubLLM) *Orchestrator {
	if fetcher == nil {
		fetcher = &fakeFetcher{files: map[string][]byte{}}
	}
	if runner == nil {
		runner = &stubRunner{}
	}
	if llm == nil {
		llm = &stubLLM{}
	}
	return NewOrchestrator(students, missions, completions, fetcher, runner, llm)
}

func TestVerifyUnknownStudent(t *testing.T) {
	orch := newOrchestrator(fakeStudents{}, fakeMissions{}, &fakeCompletions{}, nil, nil, nil)

	verdict := orch.Verify(context.Background(), "nadie", 1)
	assert.False(t, verdict.Verified)
	require.Len(t, verdict.Feedback, 1)
	assert.Contains(t, verdict.Feedback[0], "estudiante")
}

func TestVerifyUnknownMission(t *testing.T) {
	students := fakeStudents{"ana": {Slug: "ana", Role: "Ventas"}}
	orch := newOrchestrator(students, fakeMissions{}, &fakeCompletions{}, nil, nil, nil)

	verdict := orch.Verify(context.Background(), "ana", 99)
	assert.False(t, verdict.Verified)
	require.Len(t, verdict.Feedback, 1)
	assert.Contains(t, verdict.Feedback[0], "misión")
}

func TestVerifyInvalidContractIsConfigFailure(t *testing.T) {
	students := fakeStudents{"ana": {Slug: "ana"}}
	missions := fakeMissions{1: {ID: 1, Contract: `{"verification_type":"magic"}`}}
	orch := newOrchestrator(students, missions, &fakeCompletions{}, nil, nil, nil)

	verdict := orch.Verify(context.Background(), "ana", 1)
	assert.False(t, verdict.Verified)
	require.Len(t, verdict.Feedback, 1)
	assert.Contains(t, verdict.Feedback[0], "contrato")
}

// A passing script run yields a verified verdict, empty feedback, and a completion
// record for (slug, mission).
func TestVerifyScriptSuccessRecordsCompletion(t *testing.T) {
	students := fakeStudents{"ana": {Slug: "ana", Role: "Ventas"}}
	missions := fakeMissions{3: {ID: 3, Contract: mustJSON(t, contract.Contract{
		Kind:       contract.KindScriptOutput,
		Source:     contract.Source{BasePath: "students/{slug}"},
		ScriptPath: "scripts/m3_explorer.py",
	})}}
	completions := &fakeCompletions{}
	runner := &stubRunner{verdict: types.Pass()}
	orch := newOrchestrator(students, missions, completions, nil, runner, nil)

	verdict := orch.Verify(context.Background(), "ana", 3)

	assert.True(t, verdict.Verified)
	assert.Empty(t, verdict.Feedback)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, completions.records[key("ana", 3)])
}

func TestVerifyFailureDoesNotRecord(t *testing.T) {
	students := fakeStudents{"ana": {Slug: "ana"}}
	missions := fakeMissions{3: {ID: 3, Contract: mustJSON(t, contract.Contract{
		Kind:       contract.KindScriptOutput,
		Source:     contract.Source{BasePath: "students/{slug}"},
		ScriptPath: "scripts/m3_explorer.py",
	})}}
	completions := &fakeCompletions{}
	runner := &stubRunner{verdict: types.Fail("El script terminó con código 1.")}
	orch := newOrchestrator(students, missions, completions, nil, runner, nil)

	verdict := orch.Verify(context.Background(), "ana", 3)
	assert.False(t, verdict.Verified)
	assert.Empty(t, completions.records)
}

// Re-verifying an already completed mission re-asserts the completion.
func TestVerifyIsIdempotent(t *testing.T) {
	students := fakeStudents{"ana": {Slug: "ana"}}
	missions := fakeMissions{1: {ID: 1, Contract: mustJSON(t, contract.Contract{
		Kind:   contract.KindEvidence,
		Source: contract.Source{BasePath: "students/{slug}"},
		Deliverables: []contract.Deliverable{
			{Type: contract.RuleFileExists, Path: "a.txt"},
		},
	})}}
	completions := &fakeCompletions{}
	fetcher := &fakeFetcher{files: map[string][]byte{"students/ana/a.txt": []byte("x")}}
	orch := newOrchestrator(students, missions, completions, fetcher, nil, nil)

	first := orch.Verify(context.Background(), "ana", 1)
	second := orch.Verify(context.Background(), "ana", 1)

	assert.True(t, first.Verified)
	assert.True(t, second.Verified)
	assert.Equal(t, 2, completions.records[key("ana", 1)])
}

func TestVerifyDispatchesLLM(t *testing.T) {
	students := fakeStudents{"ana": {Slug: "ana"}}
	missions := fakeMissions{5: {ID: 5, Contract: mustJSON(t, contract.Contract{
		Kind:        contract.KindLLMEvaluation,
		Source:      contract.Source{BasePath: "students/{slug}"},
		ContentPath: "notes/m5.md",
	})}}
	llm := &stubLLM{verdict: types.Fail("La misión fue marcada como incompleta por el evaluador.")}
	orch := newOrchestrator(students, missions, &fakeCompletions{}, nil, nil, llm)

	verdict := orch.Verify(context.Background(), "ana", 5)
	assert.False(t, verdict.Verified)
	assert.Equal(t, 1, llm.calls)
}

func TestAccessorForPrefersRoleRepository(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string][]byte{"students/ana/a.txt": []byte("x")}}
	orch := newOrchestrator(nil, nil, nil, fetcher, nil, nil)
	c := &contract.Contract{Source: contract.Source{Repository: "default", BasePath: "students/{slug}"}}

	acc := orch.accessorFor(&types.Student{Slug: "ana", Role: "Ventas"}, c)
	_, err := acc.ReadBytes(context.Background(), "a.txt")
	require.NoError(t, err)
	// The student's role has a binding, so a "default" contract targets it.
	assert.Equal(t, "ventas", fetcher.lastKey)
}

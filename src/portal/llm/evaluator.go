// Package llm grades free-form deliverables with a chat-completion model.
// The provider sits behind ai/core.Client, so evaluator failures ("the
// grader is down") stay distinct from a model judgment ("marked incomplete").
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/portalkids/portal-api/src/ai/core"
	"github.com/portalkids/portal-api/src/portal/contract"
	"github.com/portalkids/portal-api/src/portal/source"
	"github.com/portalkids/portal-api/src/portal/types"
)

// SystemPrompt instructs the model to answer with a strict JSON verdict.
const SystemPrompt = "Eres un evaluador académico que revisa notas de estudiantes en español. " +
	"Debes decidir si la entrega cumple con los criterios del contrato y responder " +
	"únicamente en JSON usando las claves 'status' y 'feedback'. " +
	"Marca 'status' como 'completado' cuando todos los criterios están cubiertos y " +
	"'incompleto' cuando falta información, dando retroalimentación breve en español."

const unavailableMessage = "El evaluador automático no está disponible en este momento. " +
	"Inténtalo de nuevo más tarde; tu entrega no fue calificada."

const statusComplete = "completado"

type Evaluator struct {
	client core.Client
	opts   core.Options
}

// New wraps a provider client. A nil client is allowed and behaves as a
// permanently unavailable evaluator, so a misconfigured deployment degrades
// to failed verdicts instead of crashing at startup.
func New(client core.Client, opts core.Options) *Evaluator {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = SystemPrompt
	}
	return &Evaluator{client: client, opts: opts}
}

func (e *Evaluator) Evaluate(ctx context.Context, acc *source.Accessor, c *contract.Contract) types.Verdict {
	content, err := acc.ReadBytes(ctx, c.ContentPath)
	switch {
	case source.IsNotFound(err):
		return types.Fail(fmt.Sprintf(
			"No se encontró la entrega %s en %s.", c.ContentPath, acc.Describe(c.ContentPath)))
	case source.IsTransport(err):
		return types.Fail(fmt.Sprintf(
			"No se pudo descargar la entrega %s: el repositorio no respondió. Inténtalo de nuevo más tarde.",
			c.ContentPath))
	case err != nil:
		return types.Fail(fmt.Sprintf(
			"La misión está mal configurada y no se pudo localizar la entrega %s. Contacta a tu instructor.",
			c.ContentPath))
	}

	if e.client == nil {
		return types.Fail(unavailableMessage)
	}

	raw, err := e.client.Complete(ctx, buildPrompt(c, string(content)), e.opts)
	if err != nil {
		log.Printf("llm: completion failed: %v", err)
		return types.Fail(unavailableMessage)
	}

	status, feedback, err := parseResponse(raw)
	if err != nil {
		log.Printf("llm: unparseable response: %v", err)
		return types.Fail(unavailableMessage)
	}

	if status == statusComplete {
		return types.Pass()
	}
	msg := "La misión fue marcada como incompleta por el evaluador."
	if feedback != "" {
		msg += " " + feedback
	}
	return types.Fail(msg)
}

// buildPrompt interpolates the fetched content and the contract's rubric into
// the fixed grading prompt.
func buildPrompt(c *contract.Contract, content string) string {
	var sections []string
	if items := cleanItems(c.Keywords); len(items) > 0 {
		sections = append(sections, formatSection("Palabras clave obligatorias:", items))
	}
	if items := cleanItems(c.Criteria); len(items) > 0 {
		sections = append(sections, formatSection("Criterios de evaluación:", items))
	}
	if len(sections) == 0 {
		sections = append(sections, "No hay criterios adicionales declarados, evalúa claridad y completitud general.")
	}

	instructions := strings.TrimSpace(c.Instructions)
	if instructions == "" {
		instructions = "Evalúa si las notas del estudiante cubren cada punto del contrato con suficiente detalle. " +
			"Responde con 'completado' solo cuando todo está cubierto."
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(sections, "\n\n"))
	b.WriteString("\n\nNotas del estudiante:\n\"\"\"\n")
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString("Responde ÚNICAMENTE en JSON exactamente con el formato:\n")
	b.WriteString("{\n  \"status\": \"completado\" o \"incompleto\",\n")
	b.WriteString("  \"feedback\": \"explica brevemente qué falta si corresponde\"\n}\n")
	b.WriteString("Si la entrega está completa puedes dejar \"feedback\" vacío.")
	return b.String()
}

func formatSection(title string, items []string) string {
	lines := []string{title}
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return strings.Join(lines, "\n")
}

func cleanItems(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseResponse extracts and decodes the model's JSON verdict, tolerating
// code fences and prose around the JSON object plus Spanish field aliases.
func parseResponse(raw string) (status, feedback string, err error) {
	payload := extractJSONBlock(raw)
	var parsed struct {
		Status            string `json:"status"`
		Estado            string `json:"estado"`
		Feedback          string `json:"feedback"`
		Retroalimentacion string `json:"retroalimentacion"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", "", fmt.Errorf("llm: response is not valid JSON: %w", err)
	}
	status = strings.ToLower(strings.TrimSpace(firstNonEmpty(parsed.Status, parsed.Estado)))
	if status == "" {
		return "", "", fmt.Errorf("llm: response missing status field")
	}
	feedback = strings.TrimSpace(firstNonEmpty(parsed.Feedback, parsed.Retroalimentacion))
	return status, feedback, nil
}

// extractJSONBlock strips markdown fences and surrounding prose, keeping the
// outermost {...} object.
func extractJSONBlock(text string) string {
	cleaned := strings.TrimSpace(text)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end != -1 && end >= start {
		cleaned = cleaned[start : end+1]
	}
	return strings.TrimSpace(cleaned)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

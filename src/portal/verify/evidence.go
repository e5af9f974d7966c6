package verify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/portalkids/portal-api/src/portal/contract"
	"github.com/portalkids/portal-api/src/portal/source"
	"github.com/portalkids/portal-api/src/portal/types"
)

// EvaluateEvidence checks every deliverable rule in declared order. There is
// no short-circuit: the student gets the complete list of unmet requirements
// in one pass. A transport failure on a rule yields a "could not be checked"
// message, never a "failed" one.
func EvaluateEvidence(ctx context.Context, acc *source.Accessor, c *contract.Contract) types.Verdict {
	feedback := []string{}
	for _, rule := range c.Deliverables {
		if msg, ok := checkRule(ctx, acc, rule); !ok {
			feedback = append(feedback, msg)
		}
	}
	if len(feedback) > 0 {
		return types.Fail(feedback...)
	}
	return types.Pass()
}

func checkRule(ctx context.Context, acc *source.Accessor, rule contract.Deliverable) (string, bool) {
	if rule.Type == contract.RuleFileExists {
		found, err := acc.Exists(ctx, rule.Path)
		switch {
		case err != nil:
			return unevaluableMessage(rule.Path, err), false
		case !found:
			return failMessage(acc, rule), false
		}
		return "", true
	}

	data, err := acc.ReadBytes(ctx, rule.Path)
	switch {
	case source.IsNotFound(err):
		return failMessage(acc, rule), false
	case err != nil:
		return unevaluableMessage(rule.Path, err), false
	}

	if !bytes.Contains(data, []byte(rule.Content)) {
		return containsMessage(acc, rule), false
	}
	return "", true
}

// unevaluableMessage words a rule that could not be checked at all: transient
// transport failures invite a retry, anything else is a mission configuration
// problem for the instructor.
func unevaluableMessage(path string, err error) string {
	if source.IsTransport(err) {
		return fmt.Sprintf(
			"No se pudo comprobar %s: el repositorio no respondió. Inténtalo de nuevo más tarde.", path)
	}
	return fmt.Sprintf(
		"La misión está mal configurada y no se pudo comprobar %s. Contacta a tu instructor.", path)
}

func failMessage(acc *source.Accessor, rule contract.Deliverable) string {
	if rule.FeedbackFail != "" {
		return expandTemplate(rule.FeedbackFail, map[string]string{
			"path":    rule.Path,
			"content": rule.Content,
			"source":  acc.Describe(rule.Path),
		})
	}
	return fmt.Sprintf("No se encontró el archivo requerido %s en %s.", rule.Path, acc.Describe(rule.Path))
}

func containsMessage(acc *source.Accessor, rule contract.Deliverable) string {
	if rule.FeedbackFail != "" {
		return expandTemplate(rule.FeedbackFail, map[string]string{
			"path":    rule.Path,
			"content": rule.Content,
			"source":  acc.Describe(rule.Path),
		})
	}
	return fmt.Sprintf("El archivo %s no contiene el texto requerido %q.", rule.Path, rule.Content)
}

// expandTemplate substitutes {key} tokens in admin-authored feedback text.
func expandTemplate(tmpl string, vars map[string]string) string {
	out := tmpl
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}

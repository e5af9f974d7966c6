// Package script executes a student's script inside a throwaway directory
// with a hard wall-clock limit. The directory is removed on every exit path;
// nothing a run writes survives it.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/portalkids/portal-api/src/portal/contract"
	"github.com/portalkids/portal-api/src/portal/source"
	"github.com/portalkids/portal-api/src/portal/types"
)

const (
	defaultTimeout = 30 * time.Second
	excerptLimit   = 2000 // bytes of stdout/stderr quoted back to the student

	// pipeWaitDelay bounds how long Wait blocks on the output pipes after
	// the script itself has exited, so a backgrounded child that inherited
	// them cannot hold the verification request open.
	pipeWaitDelay = time.Second
)

type Runner struct {
	Interpreter string
	Timeout     time.Duration

	// BaseDir overrides the parent of the per-run temporary directories.
	// Empty means the operating system default.
	BaseDir string
}

func NewRunner(interpreter string, timeout time.Duration) *Runner {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{Interpreter: interpreter, Timeout: timeout}
}

// Run fetches the contract's script plus its declared dependencies,
// materializes them under a fresh temporary directory, and executes the
// script there. Exit code zero passes, optionally requiring a success marker
// on stdout. All failures fold into the verdict.
func (r *Runner) Run(ctx context.Context, acc *source.Accessor, c *contract.Contract) types.Verdict {
	files := map[string][]byte{}

	scriptBytes, err := acc.ReadBytes(ctx, c.ScriptPath)
	switch {
	case source.IsNotFound(err):
		return types.Fail(scriptMissingMessage(acc, c))
	case source.IsTransport(err):
		return types.Fail(fmt.Sprintf(
			"No se pudo descargar el script %s: el repositorio no respondió. Inténtalo de nuevo más tarde.",
			c.ScriptPath))
	case err != nil:
		return types.Fail(fmt.Sprintf(
			"La misión está mal configurada y no se pudo localizar el script %s. Contacta a tu instructor.",
			c.ScriptPath))
	}
	files[c.ScriptPath] = scriptBytes

	feedback := []string{}
	for _, rel := range c.RequiredFiles {
		data, err := acc.ReadBytes(ctx, rel)
		switch {
		case source.IsNotFound(err):
			feedback = append(feedback, requiredMissingMessage(acc, c, rel))
		case source.IsTransport(err):
			feedback = append(feedback, fmt.Sprintf(
				"No se pudo comprobar %s: el repositorio no respondió. Inténtalo de nuevo más tarde.", rel))
		case err != nil:
			feedback = append(feedback, fmt.Sprintf(
				"La misión está mal configurada y no se pudo comprobar %s. Contacta a tu instructor.", rel))
		default:
			files[rel] = data
		}
	}
	if len(feedback) > 0 {
		return types.Fail(feedback...)
	}

	root, err := os.MkdirTemp(r.BaseDir, "mission-run-")
	if err != nil {
		return types.Fail("No se pudo preparar el entorno de ejecución. Inténtalo de nuevo más tarde.")
	}
	defer os.RemoveAll(root)

	for rel, data := range files {
		if err := writeUnder(root, rel, data); err != nil {
			return types.Fail("No se pudo preparar el entorno de ejecución. Inténtalo de nuevo más tarde.")
		}
	}

	return r.execute(ctx, root, c)
}

func (r *Runner) execute(ctx context.Context, root string, c *contract.Contract) types.Verdict {
	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Interpreter, filepath.FromSlash(c.ScriptPath))
	cmd.Dir = root
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + root,
		"TMPDIR=" + root,
		"LANG=C.UTF-8",
	}

	// The script runs in its own process group; on timeout the whole group
	// is killed, not just the interpreter, so descendants cannot outlive
	// the deadline. WaitDelay closes the pipes if a survivor still holds
	// them once the script itself is gone.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = pipeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// The script exited cleanly but something it spawned kept the
		// output pipes open; whatever was captured by then counts.
		err = nil
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return types.Fail(fmt.Sprintf(
			"La ejecución de %s superó el tiempo límite de %s y fue detenida.",
			c.ScriptPath, r.Timeout))
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		msg := fmt.Sprintf("El script %s terminó con código %d.", c.ScriptPath, exitErr.ExitCode())
		if diag := excerpt(stderr.String()); diag != "" {
			msg += " Salida de error: " + diag
		} else if diag := excerpt(stdout.String()); diag != "" {
			msg += " Salida: " + diag
		}
		return types.Fail(msg)
	case err != nil:
		return types.Fail(fmt.Sprintf(
			"No se pudo ejecutar el script %s con el intérprete configurado. Contacta a tu instructor.",
			c.ScriptPath))
	}

	if c.SuccessMarker != "" && !strings.Contains(stdout.String(), c.SuccessMarker) {
		return types.Fail(fmt.Sprintf(
			"El script %s terminó sin errores pero no imprimió el marcador esperado %q.",
			c.ScriptPath, c.SuccessMarker))
	}
	return types.Pass()
}

// writeUnder materializes rel (already traversal-checked by the source
// client) below root, creating parent directories as needed.
func writeUnder(root, rel string, data []byte) error {
	clean, err := source.CleanPath(rel)
	if err != nil || clean == "" {
		return fmt.Errorf("script: bad path %q", rel)
	}
	target := filepath.Join(root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

func scriptMissingMessage(acc *source.Accessor, c *contract.Contract) string {
	if c.FeedbackScriptMissing != "" {
		return expandTemplate(c.FeedbackScriptMissing, map[string]string{
			"script_path": c.ScriptPath,
			"source":      acc.Describe(c.ScriptPath),
		})
	}
	return fmt.Sprintf("No se encontró el script %s en %s.", c.ScriptPath, acc.Describe(c.ScriptPath))
}

func requiredMissingMessage(acc *source.Accessor, c *contract.Contract, rel string) string {
	if c.FeedbackRequiredFileMissing != "" {
		return expandTemplate(c.FeedbackRequiredFileMissing, map[string]string{
			"required_path": rel,
			"script_path":   c.ScriptPath,
			"source":        acc.Describe(rel),
		})
	}
	return fmt.Sprintf("Hace falta el archivo %s para ejecutar el script (%s).", rel, acc.Describe(rel))
}

func expandTemplate(tmpl string, vars map[string]string) string {
	out := tmpl
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= excerptLimit {
		return s
	}
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// Package errors implements chainsaw's error taxonomy: a TriageError
// carries the error kind, a user-facing message, and the exit code the
// outermost CLI handler should use, so every command maps its failures
// to the same small set of exit codes regardless of which layer raised
// them.
package errors

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Kind is one of the named error categories. It is a
// taxonomy, not a type hierarchy: most kinds share exit code 1, but are
// kept distinct so callers (and tests) can assert on *why* a command
// failed, not just that it did.
type Kind string

const (
	KindCliUsage         Kind = "cli_usage"
	KindInputNotFound    Kind = "input_not_found"
	KindInputUnsupported Kind = "input_unsupported"
	KindRuleLoad         Kind = "rule_load"
	KindParseRecord      Kind = "parse_record"
	KindTauEvaluation    Kind = "tau_evaluation"
	KindRegexCompile     Kind = "regex_compile"
	KindRendering        Kind = "rendering"
	KindIO               Kind = "io"
	KindInternal         Kind = "internal"
)

const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// exitCodes maps a Kind to the process exit code assigned to it.
// CliUsage is the only kind that exits 2; everything else that reaches
// the top-level handler exits 1.
var exitCodes = map[Kind]int{
	KindCliUsage: ExitUsage,
}

func exitCodeFor(k Kind) int {
	if code, ok := exitCodes[k]; ok {
		return code
	}
	return ExitFailure
}

// TriageError is the structured error every command-layer function
// returns on failure: Message is what went wrong, Cause is why (when
// known), and Fix is an actionable suggestion. The CLI's top-level
// handler is the only place that converts one into stderr output and a
// process exit.
type TriageError struct {
	Kind     Kind
	Message  string
	Cause    string
	Fix      string
	ExitCode int
	Err      error
}

func (e *TriageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TriageError) Unwrap() error { return e.Err }

func New(kind Kind, message string, err error) *TriageError {
	return &TriageError{Kind: kind, Message: message, ExitCode: exitCodeFor(kind), Err: err}
}

func WithDetail(kind Kind, message, cause, fix string, err error) *TriageError {
	return &TriageError{Kind: kind, Message: message, Cause: cause, Fix: fix, ExitCode: exitCodeFor(kind), Err: err}
}

func Usage(message string) *TriageError { return New(KindCliUsage, message, nil) }

func InputNotFound(path string, err error) *TriageError {
	return New(KindInputNotFound, fmt.Sprintf("%s: not found", path), err)
}

func InputUnsupported(path string, err error) *TriageError {
	return New(KindInputUnsupported, fmt.Sprintf("%s: unsupported input", path), err)
}

func RuleLoad(message string, err error) *TriageError {
	return New(KindRuleLoad, message, err)
}

func RegexCompile(message string, err error) *TriageError {
	return New(KindRegexCompile, message, err)
}

func Rendering(message string, err error) *TriageError {
	return New(KindRendering, message, err)
}

func IO(message string, err error) *TriageError {
	return New(KindIO, message, err)
}

func Internal(message string, err error) *TriageError {
	return New(KindInternal, message, err)
}

// Format renders the single-line "[x] <message>" form used
// on stderr for a non-zero exit, colored unless noColor is set.
func (e *TriageError) Format(noColor bool) string {
	prefix := "[x] "
	if !noColor {
		prefix = color.New(color.FgRed).Sprint(prefix)
	}
	return prefix + e.Error()
}

// ErrorJSON is the --json-mode error shape.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e *TriageError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// FatalError prints err to stderr (colored "[x]" line, or JSON under
// jsonOutput) and exits with its mapped code. Non-TriageError values
// exit KindInternal's code. Never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	te, ok := err.(*TriageError)
	if !ok {
		te = Internal(err.Error(), nil)
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(te.ToJSON())
	} else {
		fmt.Fprintln(os.Stderr, te.Format(color.NoColor))
	}
	os.Exit(te.ExitCode)
}

package bitskema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reoring/bitskema/i18n"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	// Decode-time failures.
	CodeExhausted       = "exhausted"
	CodeFixedMismatch   = "fixed_mismatch"
	CodeAssertion       = "assertion_failed"
	CodeUnknownVariant  = "unknown_variant"
	CodeReaderFailed    = "reader_failed"
	CodeExpression      = "expression_error"
	CodeContextMismatch = "context_mismatch"
	CodeDepthExceeded   = "depth_exceeded"
	CodeTrailingData    = "trailing_data"
	// Build-time failures.
	CodeSchemaDefinition = "schema_definition"
	CodeUndefinedSchema  = "undefined_schema"
	CodeSchemaCycle      = "schema_cycle"
	CodeParseError       = "parse_error"
)

// ErrExhausted is the root cause of every read that ran past the end of the
// input. It survives wrapping, so errors.Is(err, ErrExhausted) holds for a
// top-level decode failure caused by a short input.
var ErrExhausted = errors.New("bitskema: cursor exhausted")

// Issue represents a single schema-definition problem.
type Issue struct {
	Path    string // Dotted schema path (for example: Packet.header.len).
	Code    string // One of the codes listed above.
	Message string
	Hint    string // Optional: remediation hints, offending expression, etc.
	Cause   error  // Optional: underlying error.
	// Params carries structured parameters (e.g., {"want":2, "got":1}) for
	// i18n and observability.
	Params map[string]any
}

// Issues is a collection of schema-definition errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. schema_definition at Packet.items: count or while required
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
		if it.Hint != "" {
			fmt.Fprintf(b, ": %s", it.Hint)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// DecodeError is the single failure a decode call yields. Trail lists the
// enclosing field, variant and schema names from the innermost outward.
type DecodeError struct {
	Code    string
	Message string
	Trail   []string
	// Offset is the cursor bit position where the failure was detected
	// (-1 when unknown).
	Offset int64
	Params map[string]any
	Cause  error
}

func (e *DecodeError) Error() string {
	b := &strings.Builder{}
	b.WriteString("bitskema: ")
	b.WriteString(e.Code)
	if e.Message != "" && e.Message != e.Code {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if p := e.Path(); p != "" {
		b.WriteString(" at ")
		b.WriteString(p)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Path renders the trail outermost first, joined with dots. Index segments
// such as "[2]" attach to the segment before them.
func (e *DecodeError) Path() string {
	var b strings.Builder
	for i := len(e.Trail) - 1; i >= 0; i-- {
		seg := e.Trail[i]
		if b.Len() > 0 && !strings.HasPrefix(seg, "[") {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// NewDecodeError builds a DecodeError whose message is resolved through the
// active i18n translator.
func NewDecodeError(code string, params map[string]any, cause error) *DecodeError {
	data := make(map[string]string, len(params))
	for k, v := range params {
		data[k] = fmt.Sprint(v)
	}
	return &DecodeError{Code: code, Message: i18n.T(code, data), Offset: -1, Params: params, Cause: cause}
}

// AddErrorContext appends name to the trail of err. Foreign errors are
// converted into a DecodeError first so the trail is never lost.
func AddErrorContext(err error, name string) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		code := CodeReaderFailed
		if errors.Is(err, ErrExhausted) {
			code = CodeExhausted
		}
		de = NewDecodeError(code, nil, err)
	}
	de.Trail = append(de.Trail, name)
	return de
}

// AsDecodeError extracts a DecodeError from err.
func AsDecodeError(err error) (*DecodeError, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// SchemaIssue creates a schema-definition Issue at path.
func SchemaIssue(path, hint string) Issue {
	return Issue{Path: path, Code: CodeSchemaDefinition, Message: i18n.T(CodeSchemaDefinition, nil), Hint: hint}
}

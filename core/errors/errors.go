// Package errors provides standardized error types and helpers for the
// specweave codebase.
//
// Only load-time failures are modeled as Go errors: malformed handler
// registration, a model missing everywhere it is searched, a relational
// schema failure. Per-row data problems (cast failures, unresolved
// relations) are IR state, not errors; see core/ir and core/proof.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("already exists")
	// ErrInternal indicates an internal system error
	ErrInternal = errors.New("internal error")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "model", "type", "handler")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// RegistrationError represents a malformed handler or type registration.
// Registration errors are load-time fatal: they abort the run before any
// document is processed.
type RegistrationError struct {
	Handler string // Handler or type name, if known
	Message string // What was malformed
	Err     error  // Underlying error, if any
}

func (e *RegistrationError) Error() string {
	if e.Handler != "" {
		return fmt.Sprintf("registration failed for %q: %s", e.Handler, e.Message)
	}
	return fmt.Sprintf("registration failed: %s", e.Message)
}

func (e *RegistrationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// CycleError reports an unresolvable dependency cycle among handlers.
// The unresolved handler names are enumerated for the operator.
type CycleError struct {
	Phase     string   // Phase whose ordering failed
	Unordered []string // Handlers left unordered by the toposort
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle in phase %s: unresolved handlers %v", e.Phase, e.Unordered)
}

func (e *CycleError) Unwrap() error {
	return ErrInvalidInput
}

// ModelError represents a model that was referenced but found in none of
// the searched locations. Model errors are load-time fatal.
type ModelError struct {
	Model    string   // Model name
	Searched []string // Directories searched
	Err      error    // Underlying error, if any
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %q not found (searched %v)", e.Model, e.Searched)
}

func (e *ModelError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// SchemaError represents a relational schema creation or migration
// failure. Schema errors are load-time fatal.
type SchemaError struct {
	Statement string // Statement that failed, possibly truncated
	Err       error  // Underlying error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema failure: %v (statement: %s)", e.Err, e.Statement)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "YAML", "TOML", "fence")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewRegistration creates a RegistrationError
func NewRegistration(handler, message string) *RegistrationError {
	return &RegistrationError{
		Handler: handler,
		Message: message,
	}
}

// NewModel creates a ModelError
func NewModel(model string, searched []string) *ModelError {
	return &ModelError{
		Model:    model,
		Searched: searched,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

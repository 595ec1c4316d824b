package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// CanisterSpec errors (E101-E109)
	ErrCanisterNameEmpty = "E101" // canister name is required
	ErrCanisterNoMethods = "E102" // at least one method required
	ErrMethodNoOps       = "E103" // method must have ops
	ErrInvalidMethodKind = "E104" // invalid method kind
	ErrDuplicateName     = "E105" // duplicate method/cell name
	ErrInvalidName       = "E106" // bad canister/method/cell identifier

	// Op errors (E110-E119)
	ErrInvalidOpKind    = "E110" // unknown op kind
	ErrMissingOpField   = "E111" // required op field absent
	ErrConflictingOp    = "E112" // mutually exclusive op fields both set
	ErrInvalidCalleeRef = "E113" // callee not "canister.method"
	ErrNegativeDuration = "E114" // negative wait or work duration
	ErrUnknownCell      = "E115" // op targets an undeclared cell
	ErrQueryMutation    = "E116" // query method mutates or suspends
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled spec against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.CanisterSpec:
		return validateCanisterSpec(spec)
	case ir.CanisterSpec:
		return validateCanisterSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// identPattern matches canister, method, and cell names: lowercase
// start, then letters, digits, underscores. The dot is reserved as the
// canister.method separator.
var identPattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)

// validateCanisterSpec validates a canister specification.
func validateCanisterSpec(spec *ir.CanisterSpec) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "canister name is required and must be non-empty",
			Code:    ErrCanisterNameEmpty,
		})
	} else if !identPattern.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid canister name %q", spec.Name),
			Code:    ErrInvalidName,
		})
	}

	// E102: at least one method required
	if len(spec.Methods) == 0 {
		errs = append(errs, ValidationError{
			Field:   "methods",
			Message: "at least one method is required",
			Code:    ErrCanisterNoMethods,
		})
	}

	for cell := range spec.Cells {
		if !identPattern.MatchString(cell) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("cells.%s", cell),
				Message: fmt.Sprintf("invalid cell name %q", cell),
				Code:    ErrInvalidName,
			})
		}
	}

	methodNames := make(map[string]bool)
	for i, method := range spec.Methods {
		// E105: duplicate method name
		if methodNames[method.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("methods[%d].name", i),
				Message: fmt.Sprintf("duplicate method name: %q", method.Name),
				Code:    ErrDuplicateName,
			})
		}
		methodNames[method.Name] = true

		if !identPattern.MatchString(method.Name) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("methods[%d].name", i),
				Message: fmt.Sprintf("invalid method name %q", method.Name),
				Code:    ErrInvalidName,
			})
		}

		// E104: method kind must be query or update
		if !ir.ValidMethodKinds[method.Kind] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("methods[%d].kind", i),
				Message: fmt.Sprintf("invalid method kind %q, must be \"query\" or \"update\"", method.Kind),
				Code:    ErrInvalidMethodKind,
			})
		}

		// E103: method must have ops
		if len(method.Ops) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("methods[%d].ops", i),
				Message: fmt.Sprintf("method %q must have at least one op", method.Name),
				Code:    ErrMethodNoOps,
			})
		}

		for j, op := range method.Ops {
			path := fmt.Sprintf("methods[%d].ops[%d]", i, j)
			errs = append(errs, validateOp(op, path, spec.Cells)...)

			// E116: queries are read-only and synchronous
			if method.Kind == ir.MethodQuery {
				switch op.Kind {
				case ir.OpSet, ir.OpAdd, ir.OpCall:
					errs = append(errs, ValidationError{
						Field:   path,
						Message: fmt.Sprintf("query method %q may not contain %q ops", method.Name, op.Kind),
						Code:    ErrQueryMutation,
					})
				}
			}
		}
	}

	return errs
}

// validateOp checks one op's field shape against its kind.
func validateOp(op ir.Op, path string, cells ir.Record) []ValidationError {
	var errs []ValidationError

	fail := func(code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}
	needCell := func() {
		if op.Cell == "" {
			fail(ErrMissingOpField, "%s op requires a cell", op.Kind)
			return
		}
		if _, ok := cells[op.Cell]; !ok {
			fail(ErrUnknownCell, "%s op targets undeclared cell %q", op.Kind, op.Cell)
		}
	}

	switch op.Kind {
	case ir.OpSet:
		needCell()
		if op.Value == nil && op.Var == "" {
			fail(ErrMissingOpField, "set op requires a value or a var")
		}
		if op.Value != nil && op.Var != "" {
			fail(ErrConflictingOp, "set op takes a value or a var, not both")
		}

	case ir.OpAdd:
		needCell()

	case ir.OpRead:
		needCell()
		if op.Var == "" {
			fail(ErrMissingOpField, "read op requires a var")
		}

	case ir.OpGuard:
		needCell()
		if op.Var == "" {
			fail(ErrMissingOpField, "guard op requires a var")
		}

	case ir.OpTrap:
		// message is optional

	case ir.OpCall:
		if op.Callee == "" {
			fail(ErrMissingOpField, "call op requires a callee")
		} else if _, _, err := op.Callee.Split(); err != nil {
			fail(ErrInvalidCalleeRef, "invalid callee %q, expected \"canister.method\"", op.Callee)
		}
		if op.WaitMillis < 0 {
			fail(ErrNegativeDuration, "wait_millis must not be negative")
		}

	case ir.OpWork:
		if op.Millis < 0 {
			fail(ErrNegativeDuration, "millis must not be negative")
		}

	case ir.OpReply:
		if op.Value == nil {
			fail(ErrMissingOpField, "reply op requires a value")
		} else if _, ok := op.Value.(ir.Record); !ok {
			fail(ErrMissingOpField, "reply value must be a record")
		}

	default:
		fail(ErrInvalidOpKind, "unknown op kind %q", op.Kind)
	}

	return errs
}

// ValidateAll validates a set of compiled canisters together: per-spec
// rules plus cross-canister call resolution. A call op whose callee
// names a canister in the set must name one of its methods; callees
// outside the set are left to runtime rejection.
func ValidateAll(specs []ir.CanisterSpec) []ValidationError {
	var errs []ValidationError

	byName := make(map[string]*ir.CanisterSpec, len(specs))
	for i := range specs {
		spec := &specs[i]
		if _, dup := byName[spec.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("duplicate canister name: %q", spec.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		byName[spec.Name] = spec
	}

	for _, spec := range specs {
		errs = append(errs, validateCanisterSpec(&spec)...)

		for i, method := range spec.Methods {
			for j, op := range method.Ops {
				if op.Kind != ir.OpCall || op.Callee == "" {
					continue
				}
				canister, methodName, err := op.Callee.Split()
				if err != nil {
					continue // already reported by validateOp
				}
				target, known := byName[canister]
				if !known {
					continue
				}
				if _, ok := target.Method(methodName); !ok {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.methods[%d].ops[%d]", spec.Name, i, j),
						Message: fmt.Sprintf("callee %q: canister %q has no method %q", op.Callee, canister, methodName),
						Code:    ErrInvalidCalleeRef,
					})
				}
			}
		}
	}

	return errs
}

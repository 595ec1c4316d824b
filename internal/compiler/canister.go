package compiler

import (
	stderrors "errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// CompileCanister parses a CUE value into a CanisterSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the canister struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`canister: counter: { ... }`)
//	spec, err := CompileCanister(v.LookupPath(cue.ParsePath("canister.counter")))
func CompileCanister(v cue.Value) (*ir.CanisterSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.CanisterSpec{}

	// Canister name comes from the struct label (the path selector).
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	cells, err := parseCells(v)
	if err != nil {
		return nil, err
	}
	spec.Cells = cells

	spec.Methods, err = parseMethods(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Methods) == 0 {
		return nil, &CompileError{
			Field:   "methods",
			Message: "at least one method is required",
			Pos:     v.Pos(),
		}
	}

	return spec, nil
}

// parseCells extracts the cell declarations with their initial values.
func parseCells(v cue.Value) (ir.Record, error) {
	cells := ir.Record{}

	cellsVal := v.LookupPath(cue.ParsePath("cells"))
	if !cellsVal.Exists() {
		return cells, nil // cells are optional
	}

	iter, err := cellsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		val, err := valueFromCUE(iter.Value())
		if err != nil {
			return nil, err
		}
		cells[iter.Label()] = val
	}

	return cells, nil
}

// parseMethods extracts the method definitions.
func parseMethods(v cue.Value) ([]ir.MethodSpec, error) {
	var methods []ir.MethodSpec

	methodsVal := v.LookupPath(cue.ParsePath("methods"))
	if !methodsVal.Exists() {
		return methods, nil
	}

	iter, err := methodsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		methodName := iter.Label()
		methodValue := iter.Value()

		method := ir.MethodSpec{
			Name: methodName,
			Kind: ir.MethodUpdate, // default when omitted
		}

		kindVal := methodValue.LookupPath(cue.ParsePath("kind"))
		if kindVal.Exists() {
			kind, err := kindVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			method.Kind = ir.MethodKind(kind)
		}

		rejectVal := methodValue.LookupPath(cue.ParsePath("reject_anonymous"))
		if rejectVal.Exists() {
			reject, err := rejectVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
			method.RejectAnonymous = reject
		}

		opsVal := methodValue.LookupPath(cue.ParsePath("ops"))
		if !opsVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("methods.%s.ops", methodName),
				Message: "method ops are required",
				Pos:     methodValue.Pos(),
			}
		}

		method.Ops, err = parseOps(opsVal, methodName)
		if err != nil {
			return nil, err
		}

		methods = append(methods, method)
	}

	return methods, nil
}

// parseOps extracts a method's ordered op list.
func parseOps(v cue.Value, methodName string) ([]ir.Op, error) {
	var ops []ir.Op

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		op, err := parseOp(iter.Value())
		if err != nil {
			var ce *CompileError
			if stderrors.As(err, &ce) && ce.Field == "" {
				ce.Field = fmt.Sprintf("methods.%s.ops[%d]", methodName, i)
			}
			return nil, err
		}
		ops = append(ops, op)
	}

	return ops, nil
}

// parseOp parses a single op struct.
func parseOp(v cue.Value) (ir.Op, error) {
	var op ir.Op

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return op, &CompileError{Message: "op kind is required", Pos: v.Pos()}
	}
	kind, err := kindVal.String()
	if err != nil {
		return op, formatCUEError(err)
	}
	op.Kind = ir.OpKind(kind)

	if s, ok, err := optString(v, "cell"); err != nil {
		return op, err
	} else if ok {
		op.Cell = s
	}
	if s, ok, err := optString(v, "var"); err != nil {
		return op, err
	} else if ok {
		op.Var = s
	}
	if s, ok, err := optString(v, "message"); err != nil {
		return op, err
	} else if ok {
		op.Message = s
	}
	if s, ok, err := optString(v, "callee"); err != nil {
		return op, err
	} else if ok {
		op.Callee = ir.MethodRef(s)
	}
	if n, ok, err := optInt(v, "delta"); err != nil {
		return op, err
	} else if ok {
		op.Delta = n
	}
	if n, ok, err := optInt(v, "wait_millis"); err != nil {
		return op, err
	} else if ok {
		op.WaitMillis = n
	}
	if n, ok, err := optInt(v, "millis"); err != nil {
		return op, err
	} else if ok {
		op.Millis = n
	}

	valueVal := v.LookupPath(cue.ParsePath("value"))
	if valueVal.Exists() {
		op.Value, err = valueFromCUE(valueVal)
		if err != nil {
			return op, err
		}
	}

	argsVal := v.LookupPath(cue.ParsePath("args"))
	if argsVal.Exists() {
		args, err := valueFromCUE(argsVal)
		if err != nil {
			return op, err
		}
		rec, ok := args.(ir.Record)
		if !ok {
			return op, &CompileError{Message: "call args must be a struct", Pos: argsVal.Pos()}
		}
		op.Args = rec
	}

	return op, nil
}

func optString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optInt(v cue.Value, field string) (int64, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return n, true, nil
}

// valueFromCUE converts a concrete CUE value into an IR value.
// Floats are forbidden: there is no ir representation for them and the
// canonical encoding would not be stable across runtimes.
func valueFromCUE(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Text(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		vec := ir.Vec{}
		for iter.Next() {
			elem, err := valueFromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			vec = append(vec, elem)
		}
		return vec, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		rec := ir.Record{}
		for iter.Next() {
			field, err := valueFromCUE(iter.Value())
			if err != nil {
				return nil, err
			}
			rec[iter.Label()] = field
		}
		return rec, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "value",
			Message: "float values are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

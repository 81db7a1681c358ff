package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/codegen"
	"github.com/potto-labs/potto/pkg/models"
)

// interpRe matches {{name.field}} runtime references inside param values.
var interpRe = regexp.MustCompile(`\{\{\s*([A-Za-z_]\w*)\.(\w+)\s*\}\}`)

// Interpreter runs one ActionProgram against the client factory. Saved
// collections live in a per-run scope; ops without save_as contribute
// straight to the result list.
type Interpreter struct {
	factory cloud.ClientFactory
	cfg     cloud.Config
}

// NewInterpreter binds an interpreter to a tenancy.
func NewInterpreter(factory cloud.ClientFactory, cfg cloud.Config) *Interpreter {
	return &Interpreter{factory: factory, cfg: cfg}
}

// Run interprets the program. The returned results are whatever was
// produced before any error; the error aborts the rest of the program.
func (in *Interpreter) Run(ctx context.Context, program *codegen.Program) ([]models.ResultItem, error) {
	if program == nil || len(program.Ops) == 0 {
		return nil, fmt.Errorf("no ops to run")
	}
	scope := map[string][]models.ResultItem{}
	return in.runOps(ctx, program.Ops, scope, nil)
}

// RunBatch interprets a batched multi-step program. Unlike Run, a failed
// top-level op becomes an error item and the remaining ops still execute,
// so one bad batch entry cannot sink its siblings. Ops nested inside
// for_each keep the abort semantics of Run.
func (in *Interpreter) RunBatch(ctx context.Context, program *codegen.Program) ([]models.ResultItem, error) {
	if program == nil || len(program.Ops) == 0 {
		return nil, fmt.Errorf("no ops to run")
	}
	scope := map[string][]models.ResultItem{}
	var results []models.ResultItem
	for i := range program.Ops {
		op := &program.Ops[i]
		produced, err := in.runOp(ctx, op, scope, nil)
		if err != nil {
			label := op.Operation
			if label == "" {
				label = op.Op
			}
			results = append(results, models.ErrorItem(err, label))
			continue
		}
		if op.SaveAs != "" {
			scope[op.SaveAs] = produced
			continue
		}
		results = append(results, produced...)
	}
	return results, nil
}

func (in *Interpreter) runOps(ctx context.Context, ops []codegen.Step, scope map[string][]models.ResultItem, item map[string]any) ([]models.ResultItem, error) {
	var results []models.ResultItem
	for i := range ops {
		op := &ops[i]
		produced, err := in.runOp(ctx, op, scope, item)
		if err != nil {
			return results, err
		}
		if op.SaveAs != "" {
			scope[op.SaveAs] = produced
			continue
		}
		results = append(results, produced...)
	}
	return results, nil
}

func (in *Interpreter) runOp(ctx context.Context, op *codegen.Step, scope map[string][]models.ResultItem, item map[string]any) ([]models.ResultItem, error) {
	switch op.Op {
	case codegen.OpListResources:
		return in.listResources(ctx, op, scope, item)
	case codegen.OpCall:
		return in.call(ctx, op, scope, item)
	case codegen.OpFilter:
		return filterOp(op, scope)
	case codegen.OpForEach:
		return in.forEach(ctx, op, scope)
	}
	return nil, fmt.Errorf("unknown step %q", op.Op)
}

func (in *Interpreter) listResources(ctx context.Context, op *codegen.Step, scope map[string][]models.ResultItem, item map[string]any) ([]models.ResultItem, error) {
	client, err := in.factory.Get(op.Service, in.cfg)
	if err != nil {
		return nil, err
	}
	params, err := resolveParams(op.Params, scope, item)
	if err != nil {
		return nil, err
	}
	fanOut := op.AllCompartments
	if v, ok := params["all_compartments"].(bool); ok {
		fanOut = fanOut || v
	}
	delete(params, "all_compartments")

	if !fanOut {
		raw, err := client.Invoke(ctx, op.Operation, params)
		if err != nil {
			return nil, err
		}
		return sanitize(raw), nil
	}

	compartments, err := cloud.ListCompartments(ctx, in.factory, in.cfg)
	if err != nil {
		return nil, err
	}
	var out []models.ResultItem
	for _, cpt := range compartments {
		scoped := map[string]any{}
		for k, v := range params {
			scoped[k] = v
		}
		scoped["compartment_id"] = cpt["id"]
		raw, err := client.Invoke(ctx, op.Operation, scoped)
		if err != nil {
			// One bad compartment must not sink the fan-out.
			out = append(out, models.ErrorItem(err, op.Operation))
			continue
		}
		out = append(out, sanitize(raw)...)
	}
	return dedupeByID(out), nil
}

func (in *Interpreter) call(ctx context.Context, op *codegen.Step, scope map[string][]models.ResultItem, item map[string]any) ([]models.ResultItem, error) {
	client, err := in.factory.Get(op.Service, in.cfg)
	if err != nil {
		return nil, err
	}
	params, err := resolveParams(op.Params, scope, item)
	if err != nil {
		return nil, err
	}
	raw, err := client.Invoke(ctx, op.Operation, params)
	if err != nil {
		return nil, err
	}
	return sanitize(raw), nil
}

func filterOp(op *codegen.Step, scope map[string][]models.ResultItem) ([]models.ResultItem, error) {
	input, ok := scope[op.Input]
	if !ok {
		return nil, fmt.Errorf("name %q is not defined", op.Input)
	}
	var out []models.ResultItem
	for _, it := range input {
		if it.IsError() {
			out = append(out, it)
			continue
		}
		if matchesAll(it.Attrs, op.Conditions) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (in *Interpreter) forEach(ctx context.Context, op *codegen.Step, scope map[string][]models.ResultItem) ([]models.ResultItem, error) {
	over, ok := scope[op.Over]
	if !ok {
		return nil, fmt.Errorf("name %q is not defined", op.Over)
	}
	var out []models.ResultItem
	for _, it := range over {
		if it.IsError() {
			continue
		}
		produced, err := in.runOps(ctx, op.Ops, scope, it.Attrs)
		out = append(out, produced...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// resolveParams deep-copies params and resolves {{name.field}} references
// against the scope and, inside for_each, the current item.
func resolveParams(params map[string]any, scope map[string][]models.ResultItem, item map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		resolved, err := resolveString(s, scope, item)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveString(s string, scope map[string][]models.ResultItem, item map[string]any) (any, error) {
	matches := interpRe.FindStringSubmatch(strings.TrimSpace(s))
	// A whole-value reference keeps the referenced value's type.
	if matches != nil && strings.TrimSpace(s) == matches[0] {
		return lookupRef(matches[1], matches[2], scope, item)
	}
	var refErr error
	expanded := interpRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := interpRe.FindStringSubmatch(m)
		v, err := lookupRef(parts[1], parts[2], scope, item)
		if err != nil {
			refErr = err
			return m
		}
		return fmt.Sprint(v)
	})
	if refErr != nil {
		return nil, refErr
	}
	return expanded, nil
}

func lookupRef(name, field string, scope map[string][]models.ResultItem, item map[string]any) (any, error) {
	var attrs map[string]any
	if name == "item" {
		if item == nil {
			return nil, fmt.Errorf("name %q is not defined outside for_each", name)
		}
		attrs = item
	} else {
		saved, ok := scope[name]
		if !ok || len(saved) == 0 {
			return nil, fmt.Errorf("name %q is not defined", name)
		}
		attrs = saved[0].AsMap()
	}
	v, ok := attrs[field]
	if !ok {
		return nil, fmt.Errorf("%q has no attribute %q", name, field)
	}
	return v, nil
}

// sanitize converts a raw client result into result items: lists element
// by element, maps via the ToMap contract, primitives as {value, type}.
func sanitize(raw any) []models.ResultItem {
	items, ok := raw.([]any)
	if !ok {
		return []models.ResultItem{sanitizeOne(raw)}
	}
	out := make([]models.ResultItem, 0, len(items))
	for _, it := range items {
		out = append(out, sanitizeOne(it))
	}
	return out
}

func sanitizeOne(v any) models.ResultItem {
	if err, ok := v.(error); ok {
		return models.ErrorItem(err, fmt.Sprintf("%T", v))
	}
	if m, ok := cloud.ToMap(v); ok {
		return models.OkItem(m)
	}
	return models.ValueItem(v)
}

func matchesAll(attrs map[string]any, conditions []models.Filter) bool {
	for _, c := range conditions {
		got, ok := attrs[c.Field]
		if !ok {
			return false
		}
		gotS := fmt.Sprint(got)
		wantS := fmt.Sprint(c.Value)
		switch strings.ToLower(c.Operator) {
		case "", "equals":
			if !strings.EqualFold(gotS, wantS) {
				return false
			}
		case "not_equals":
			if strings.EqualFold(gotS, wantS) {
				return false
			}
		case "contains":
			if !strings.Contains(strings.ToLower(gotS), strings.ToLower(wantS)) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// dedupeByID drops duplicate records a tenancy-wide fan-out can produce
// when the root scope already includes child-compartment resources.
func dedupeByID(items []models.ResultItem) []models.ResultItem {
	seen := map[string]bool{}
	out := items[:0]
	for _, it := range items {
		if !it.IsError() {
			if id, ok := it.Attrs["id"].(string); ok && id != "" {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
		}
		out = append(out, it)
	}
	return out
}

// Package rules provides the CEL-Go based alert filter engine.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// ErrInvalidExpression wraps compile and type errors of filter expressions.
var ErrInvalidExpression = errors.New("invalid filter expression")

// Engine compiles and evaluates CEL filter expressions over alerts.
// Compiled programs are kept per expression text.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	programs   map[string]cel.Program
	maxWorkers int
}

// NewEngine creates a new filter engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Alert fields exposed to expressions
	env, err := cel.NewEnv(
		cel.Variable("identity", cel.StringType),
		cel.Variable("contract_number", cel.StringType),
		cel.Variable("contract_key", cel.StringType),
		cel.Variable("contract_year", cel.IntType),
		cel.Variable("contract_date", cel.TimestampType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("contribution_count", cel.IntType),
		cel.Variable("elapsed_days", cel.IntType),
		cel.Variable("parties", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		programs:   make(map[string]cel.Program),
		maxWorkers: maxWorkers,
	}, nil
}

// Validate compiles expr without evaluating it.
func (e *Engine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Filter returns the alerts for which expr evaluates to true, in their
// original order. An empty expression keeps every alert. Evaluation errors
// on a single alert (e.g. a missing field) exclude that alert.
func (e *Engine) Filter(ctx context.Context, expr string, alerts []domain.Alert) ([]domain.Alert, error) {
	if expr == "" || len(alerts) == 0 {
		return alerts, nil
	}

	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}

	keep := make([]bool, len(alerts))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i := range alerts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			out, _, err := prg.Eval(Activation(&alerts[idx]))
			if err != nil {
				return
			}
			keep[idx] = out == types.True
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Alert, 0, len(alerts))
	for i := range alerts {
		if keep[i] {
			out = append(out, alerts[i])
		}
	}
	return out, nil
}

// Activation builds the CEL variables for one alert.
func Activation(a *domain.Alert) map[string]any {
	amount, _ := a.TotalAmount.Float64()
	parties := a.Parties
	if parties == nil {
		parties = []string{}
	}
	return map[string]any{
		"identity":           a.Identity,
		"contract_number":    a.ContractNumber,
		"contract_key":       a.ContractKey,
		"contract_year":      int64(a.ContractYear),
		"contract_date":      a.ContractDate,
		"amount":             amount,
		"contribution_count": int64(a.ContributionCount),
		"elapsed_days":       int64(a.MinElapsedDays),
		"parties":            parties,
	}
}

// ProgramsCount returns the number of cached compiled expressions.
func (e *Engine) ProgramsCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// Close drops the compiled programs.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs = make(map[string]cel.Program)
	return nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}

	if outputType := ast.OutputType(); outputType != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", ErrInvalidExpression, outputType)
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

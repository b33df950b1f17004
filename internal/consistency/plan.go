// Package consistency keeps the denormalized task/user assignment coherent on a store
// without cross-document transactions.
//
// Task.AssignedUser is the authoritative reference. User.PendingTasks and
// Task.AssignedUserName are derived and may drift when a multi-write sequence is
// interrupted; the Reconciler recomputes them from the reference.
package consistency

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Step is one write in a Plan. Steps must be idempotent so the whole plan can be retried.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Plan is an ordered list of writes executed without atomicity. Execution stops at the
// first failing step; the steps already applied stay applied.
type Plan struct {
	op    string
	steps []Step
}

func NewPlan(op string) *Plan {
	return &Plan{op: op}
}

func (p *Plan) Add(name string, run func(ctx context.Context) error) *Plan {
	p.steps = append(p.steps, Step{Name: name, Run: run})
	return p
}

// AddIf appends the step only when cond holds, keeping call sites linear.
func (p *Plan) AddIf(cond bool, name string, run func(ctx context.Context) error) *Plan {
	if cond {
		p.Add(name, run)
	}
	return p
}

func (p *Plan) Op() string {
	return p.op
}

func (p *Plan) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

func (p *Plan) Len() int {
	return len(p.steps)
}

func (p *Plan) Execute(ctx context.Context) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return p.fail(i, step, err)
		}
		if err := step.Run(ctx); err != nil {
			return p.fail(i, step, err)
		}
	}
	return nil
}

func (p *Plan) fail(i int, step Step, err error) error {
	completed := make([]string, i)
	for j := 0; j < i; j++ {
		completed[j] = p.steps[j].Name
	}
	stepErr := &StepError{Op: p.op, Step: step.Name, Completed: completed, Err: err}
	if i > 0 {
		log.Printf("[reconcile] Warning: %s stopped at %q after %d applied step(s): %v", p.op, step.Name, i, err)
	}
	return stepErr
}

// StepError reports where a plan stopped. Partial reports whether earlier writes were
// applied, meaning the invariants may be violated until repaired.
type StepError struct {
	Op        string
	Step      string
	Completed []string
	Err       error
}

func (e *StepError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %s (after %s): %v", e.Op, e.Step, strings.Join(e.Completed, ", "), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Partial() bool {
	return len(e.Completed) > 0
}

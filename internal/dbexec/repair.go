package dbexec

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"salesql/internal/llm"
	"salesql/internal/logging"
	"salesql/internal/observability"
	"salesql/internal/planner"
	"salesql/internal/sqlutil"
)

// DefaultMaxRepairAttempts bounds LLM rewrites per request.
const DefaultMaxRepairAttempts = 2

// Repair kinds recorded in metrics.
const (
	RepairNarrow = "narrow"
	RepairLLM    = "llm"
)

const undefinedColumnCode = "42703"

var undefinedColumnPattern = regexp.MustCompile(`column "?([^"\s]+)"? does not exist`)

// SQLRepairer rewrites a failing statement.
type SQLRepairer interface {
	RepairSQL(ctx context.Context, req llm.RepairRequest) (string, error)
}

// Statement executes one SQL statement.
type Statement interface {
	Execute(ctx context.Context, query string, args ...any) Result
}

// Attempt is one planned query to run.
type Attempt struct {
	Question      string
	Plan          *planner.Plan
	AllowedTables []string
}

// Outcome is the final result of running an attempt with repairs.
type Outcome struct {
	Result         Result
	SQL            string
	Args           []any
	Plan           *planner.Plan
	RetryCount     int
	NarrowRepaired bool
}

// Runner executes plans and repairs failures: once by swapping a missing date
// column, then through the LLM until the attempt budget is spent.
type Runner struct {
	exec        Statement
	repairer    SQLRepairer
	maxAttempts int
}

// NewRunner creates a runner. repairer may be nil.
func NewRunner(exec Statement, repairer SQLRepairer, maxAttempts int) *Runner {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	if c, ok := repairer.(*llm.Client); ok && c == nil {
		repairer = nil
	}
	return &Runner{exec: exec, repairer: repairer, maxAttempts: maxAttempts}
}

// Run executes the attempt. The returned Result carries the last execution
// error unchanged when every repair failed.
func (r *Runner) Run(ctx context.Context, a Attempt) Outcome {
	logger := logging.FromContext(ctx)
	metrics := observability.AssistantMetricsFromContext(ctx)

	plan := a.Plan
	out := Outcome{Plan: plan, SQL: plan.SQL, Args: plan.Args}
	out.Result = r.exec.Execute(ctx, out.SQL, out.Args...)

	for out.Result.Err != nil {
		if !out.NarrowRepaired {
			if next, ok := narrowRepair(plan, out.Result.Err); ok {
				out.NarrowRepaired = true
				metrics.RecordRepair(ctx, RepairNarrow)
				logger.Info("retrying with alternate date column",
					"from", plan.DateColumn, "to", next.DateColumn)
				plan = next
				out.Plan, out.SQL, out.Args = plan, plan.SQL, plan.Args
				out.Result = r.exec.Execute(ctx, out.SQL, out.Args...)
				continue
			}
		}

		if r.repairer == nil || out.RetryCount >= r.maxAttempts {
			break
		}
		out.RetryCount++
		metrics.RecordRepair(ctx, RepairLLM)

		tables := a.AllowedTables
		if len(tables) == 0 {
			tables = plan.Tables()
		}
		fixed, err := r.repairer.RepairSQL(ctx, llm.RepairRequest{
			UserIntent:    a.Question,
			TablesAllowed: tables,
			PreviousSQL:   sqlutil.Inline(out.SQL, out.Args),
			ErrorMessage:  out.Result.Err.Error(),
		})
		if err != nil {
			logger.Warn("sql repair failed", "retry_count", out.RetryCount, "error", err)
			break
		}
		logger.Info("retrying with repaired sql", "retry_count", out.RetryCount)
		out.SQL, out.Args = fixed, nil
		out.Result = r.exec.Execute(ctx, out.SQL)
	}
	return out
}

// UndefinedColumn extracts the missing column from an undefined-column error,
// without any alias prefix.
func UndefinedColumn(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != undefinedColumnCode {
			return "", false
		}
		msg = pqErr.Message
	}
	m := undefinedColumnPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	name := m[1]
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, `"`), true
}

func narrowRepair(plan *planner.Plan, err error) (*planner.Plan, bool) {
	column, ok := UndefinedColumn(err)
	if !ok || plan.DateColumn == "" || column != plan.DateColumn || len(plan.AltDateColumns) == 0 {
		return nil, false
	}
	return plan.WithDateColumn(plan.AltDateColumns[0]), true
}

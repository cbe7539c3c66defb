package database

import (
	"fmt"
	"strconv"
	"time"

	"shareit/internal/models"
)

// queryBuilder numbers placeholders in order of appearance, which keeps the
// same SQL valid for pgx ($N) and sqlite3 (named $N bound by position).
type queryBuilder struct {
	args []any
}

func (q *queryBuilder) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// stateClauses mirrors the predicates behind models.BookingState.Matches.
var stateClauses = map[models.BookingState]func(q *queryBuilder, now time.Time) string{
	models.StateAll: func(*queryBuilder, time.Time) string {
		return ""
	},
	models.StateCurrent: func(q *queryBuilder, now time.Time) string {
		return "b.start_at < " + q.arg(now) + " AND b.end_at > " + q.arg(now)
	},
	models.StatePast: func(q *queryBuilder, now time.Time) string {
		return "b.end_at < " + q.arg(now) + " AND b.status = " + q.arg(string(models.StatusApproved))
	},
	models.StateFuture: func(q *queryBuilder, now time.Time) string {
		return "b.start_at > " + q.arg(now)
	},
	models.StateWaiting: func(q *queryBuilder, _ time.Time) string {
		return "b.status = " + q.arg(string(models.StatusWaiting))
	},
	models.StateRejected: func(q *queryBuilder, _ time.Time) string {
		return "b.status = " + q.arg(string(models.StatusRejected))
	},
}

func stateClause(q *queryBuilder, filter models.BookingFilter) (string, error) {
	state := filter.State
	if state == "" {
		state = models.StateAll
	}
	build, ok := stateClauses[state]
	if !ok {
		return "", fmt.Errorf("unsupported booking state %q", filter.State)
	}
	return build(q, utc(filter.Now)), nil
}

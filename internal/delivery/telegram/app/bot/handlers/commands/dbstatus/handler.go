// internal/delivery/telegram/app/bot/handlers/commands/dbstatus/handler.go
package dbstatus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"signal-desk-bot/application/scheduler"
	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/database"
)

// Database reports pool and table statistics.
type Database interface {
	GetStats(ctx context.Context) database.Stats
}

// Jobs reports the background job states.
type Jobs interface {
	Jobs() []scheduler.JobStatus
}

type dbStatusHandler struct {
	*base.BaseHandler
	db   Database
	jobs Jobs
}

// NewHandler creates /dbstatus
func NewHandler(db Database, jobs Jobs) handlers.Handler {
	return &dbStatusHandler{
		BaseHandler: &base.BaseHandler{Name: "dbstatus_handler", Command: constants.CommandDBStatus, Type: handlers.TypeCommand},
		db:          db,
		jobs:        jobs,
	}
}

func (h *dbStatusHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	st := h.db.GetStats(ctx)
	var b strings.Builder
	fmt.Fprintf(&b, "🗄 Database (%s): %s %s\n", st.Dialect, st.State, h.GetBoolDisplay(st.Healthy))
	fmt.Fprintf(&b, "Pool: %d open, %d in use, %d idle", st.OpenConnections, st.InUse, st.Idle)
	if st.WaitCount > 0 {
		fmt.Fprintf(&b, ", %d waits (%s)", st.WaitCount, st.WaitDuration.Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "\nMigrations: %d/%d\n", st.MigrationsApplied, st.MigrationsTotal)

	if len(st.TableCounts) > 0 {
		b.WriteString("\nTables:\n")
		names := make([]string, 0, len(st.TableCounts))
		for name := range st.TableCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			n := st.TableCounts[name]
			if n < 0 {
				fmt.Fprintf(&b, "  %s: ⚠️ unreadable\n", name)
				continue
			}
			fmt.Fprintf(&b, "  %s: %d\n", name, n)
		}
	}

	if h.jobs != nil {
		b.WriteString("\nJobs:\n")
		b.WriteString(RenderJobs(h.jobs.Jobs()))
	}
	return base.Message(b.String()), nil
}

// RenderJobs lists job states, one line each.
func RenderJobs(jobs []scheduler.JobStatus) string {
	var b strings.Builder
	for _, j := range jobs {
		state := "idle"
		if j.Running {
			state = "running"
		}
		fmt.Fprintf(&b, "  %s every %s: %s, %d runs", j.Name, j.Interval, state, j.Runs)
		if j.Skipped > 0 {
			fmt.Fprintf(&b, ", %d skipped", j.Skipped)
		}
		if !j.LastRun.IsZero() {
			fmt.Fprintf(&b, ", last %s (%s)", calendar.Local(j.LastRun).Format("15:04:05"), j.LastDuration.Round(time.Millisecond))
		}
		if j.LastErr != nil {
			fmt.Fprintf(&b, "\n    ❌ %v", j.LastErr)
		}
		b.WriteString("\n")
	}
	return b.String()
}

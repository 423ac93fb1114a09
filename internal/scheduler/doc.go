// Package scheduler documents, but deliberately does not implement, the
// integration point for scheduled task orchestration. Wall-clock trigger
// cadence is an external collaborator's concern, not this module's.
//
// A production deployment is expected to wire a cron-style driver (the
// originating codebase's trader-go/internal/scheduler package builds one
// on top of github.com/robfig/cron/v3, registering each job under a
// standard five/six-field cron expression) around the three operations
// this module exposes as public entry points:
//
//   - SyncDailyIncremental, on a short interval during trading hours
//   - FinalizeTodayAfterClose, once per day shortly after the configured
//     close_finalize_time
//   - BackfillHistoryFull, on a longer interval (or a one-shot operator
//     trigger) to advance the bootstrap cursor in batches
//
// None of that scheduling logic lives here. The Sync Service has no
// knowledge of wall-clock trigger cadence, only of Beijing trade dates and
// the close-finalize threshold. Wiring an actual cron.Cron instance and
// calendar/holiday awareness belongs to the orchestrator that embeds this
// module. See DESIGN.md for why robfig/cron is named here rather than
// imported.
package scheduler

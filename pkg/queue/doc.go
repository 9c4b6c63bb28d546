// Package queue runs periodic maintenance jobs in-process.
//
// A Scheduler holds named jobs, each with a Schedule. Start ticks until its
// context is cancelled and launches every due job in its own goroutine. A job
// whose previous run has not finished is skipped for that slot, so runs never
// overlap. Run executes a job immediately, which the CLI uses for one-shot
// maintenance commands.
//
//	s := queue.NewScheduler(queue.WithSchedulerLogger(log))
//	_ = s.AddJob("cleanup", queue.EveryInterval(time.Hour), manager.CleanupJob, queue.WithRunOnStart())
//	err := s.Start(ctx)
//
// Schedules can be built in code or parsed from configuration strings with
// ParseSchedule ("every 15m", "hourly :05", "daily 03:30").
package queue

// Package jobs schedules the periodic billing maintenance work on a
// queue.Scheduler: the local status cleanup sweep and seat quantity sync.
//
// With a Locker configured, each run first takes a cluster-wide lock named
// after the job, so only one instance performs a given sweep at a time.
package jobs

// Package scheduler triggers named jobs on cron or fixed-interval schedules.
//
// Jobs run on the cron goroutine with a per-run timeout. A run that fires
// while the previous run of the same job is still in flight is skipped, so
// a job never overlaps itself.
package scheduler

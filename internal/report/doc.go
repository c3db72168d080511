// Package report builds and delivers the per-business briefing.
//
// Pusher.PushOne runs the whole pipeline for one business line: fetch the
// sheet, compare the trailing 7 rows with the 7 before them, build the card,
// post it to every webhook, then log the push and update the gauges.
// PushBatch fans this out over several businesses with a concurrency cap.
// Scheduler repeats the default batch on push.interval.
package report

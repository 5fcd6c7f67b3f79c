package transport

import (
	"github.com/go-co-op/gocron/v2"
	"time"
)

// Tick registers fn to run every interval on sched, tagged for later
// lookup/removal. It is the common shape every periodic protocol tick in
// this cluster uses (frontier sharing, stager top-up, quota requests,
// upload retries, the job-ingest scan): a gocron DurationJob wrapping a
// zero-argument task.
func Tick(sched gocron.Scheduler, tag string, interval time.Duration, fn func()) error {
	_, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithTags(tag),
	)
	return err
}

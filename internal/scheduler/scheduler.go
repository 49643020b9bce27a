package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/yanun0323/logs"
)

// Job is a unit of scheduled work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler runs jobs on cron schedules with a leading seconds field.
type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithSeconds())}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logs.Info("scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logs.Info("scheduler stopped")
}

// AddJob registers job with schedule, e.g. "0 */5 * * * *" or "@every 30s".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			logs.Errorf("job %s failed, err: %+v", job.Name(), err)
		}
	})
	if err != nil {
		return err
	}
	logs.Infof("job registered. job: %s, schedule: %s", job.Name(), schedule)
	return nil
}

// RunNow executes a job outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	return job.Run()
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

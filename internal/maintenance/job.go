package maintenance

import (
	"context"

	"gorm.io/gorm"
)

// Job is one housekeeping task run by the maintenance worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Jobs keeps registration order.
type Jobs struct {
	jobs []Job
}

func NewJobs(jobs ...Job) *Jobs {
	set := &Jobs{}
	for _, job := range jobs {
		set.Add(job)
	}
	return set
}

func (j *Jobs) Add(job Job) {
	if job == nil {
		return
	}
	j.jobs = append(j.jobs, job)
}

// List returns a copy.
func (j *Jobs) List() []Job {
	out := make([]Job, len(j.jobs))
	copy(out, j.jobs)
	return out
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

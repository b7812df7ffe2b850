package cron

import (
	"context"
	"slices"
	"strings"
)

// Job is one unit of scheduled work. Name doubles as the metrics label.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order, one per name.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register reports whether job was added. Nil jobs, blank names and names
// already taken are refused.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return false
	}
	if _, taken := r.names[name]; taken {
		return false
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return true
}

func (r *Registry) Jobs() []Job { return slices.Clone(r.jobs) }

func (r *Registry) Names() []string {
	out := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		out[i] = job.Name()
	}
	return out
}

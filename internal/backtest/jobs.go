package backtest

import (
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
)

var ErrJobNotFound = errors.New("fetch job not found")

// FetchJob 是异步拉取任务的进度快照。
type FetchJob struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Params    FetchParams `json:"params"`
	Total     int64       `json:"total"`
	Completed int64       `json:"completed"`
	Missing   []Gap       `json:"missing,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (j FetchJob) clone() FetchJob {
	j.Missing = append([]Gap(nil), j.Missing...)
	j.Warnings = append([]string(nil), j.Warnings...)
	return j
}

// jobBook 是进程内的任务表，所有读取都返回副本。
type jobBook struct {
	mu   sync.RWMutex
	jobs map[string]*FetchJob
	now  func() time.Time
}

func newJobBook() *jobBook {
	return &jobBook{jobs: make(map[string]*FetchJob), now: time.Now}
}

func (b *jobBook) add(job FetchJob) FetchJob {
	now := b.now()
	job.StartedAt, job.UpdatedAt = now, now
	b.mu.Lock()
	b.jobs[job.ID] = &job
	b.mu.Unlock()
	return job.clone()
}

func (b *jobBook) update(id string, fn func(*FetchJob)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if job, ok := b.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = b.now()
	}
}

// finish 写入终态与剩余缺口。
func (b *jobBook) finish(id, status, message string, gaps []Gap, warnings []string) {
	b.update(id, func(j *FetchJob) {
		j.Status = status
		j.Message = message
		j.Missing = append([]Gap(nil), gaps...)
		if len(warnings) > 0 {
			j.Warnings = append([]string(nil), warnings...)
		}
	})
}

func (b *jobBook) get(id string) (FetchJob, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	job, ok := b.jobs[id]
	if !ok {
		return FetchJob{}, ErrJobNotFound
	}
	return job.clone(), nil
}

// list 按提交时间升序返回。
func (b *jobBook) list() []FetchJob {
	b.mu.RLock()
	out := make([]FetchJob, 0, len(b.jobs))
	for _, job := range b.jobs {
		out = append(out, job.clone())
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].StartedAt.Before(out[k].StartedAt)
	})
	return out
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	uuid "github.com/google/uuid"
)

var errQueueFull = errors.New("job queue full")

// enqueueJob validates and queues a transfer. Jobs run one at a time since
// the interpreter is half-duplex.
func (app *App) enqueueJob(kind, filename, code, source string) (*Job, error) {
	if err := validateCode(code); err != nil {
		return nil, err
	}
	if kind == JobUpload {
		if err := validateFilename(filename); err != nil {
			return nil, err
		}
	}

	job := &Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		Filename: filename,
		Source:   source,
		State:    JobQueued,
		Lines:    len(strings.Split(code, "\n")),
		Queued:   time.Now().Format(time.RFC3339),
		code:     code,
	}

	app.addJobLogEntry(job)

	select {
	case app.jobs <- job:
	default:
		app.updateJob(job, func(j *Job) {
			j.State = JobFailed
			j.Error = errQueueFull.Error()
		})
		return nil, errQueueFull
	}

	log.Printf("Queued %s job %s (%d lines) from %s", kind, job.ID, job.Lines, source)
	return job, nil
}

func (app *App) runJobs(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-app.jobs:
			app.runJob(ctx, job)
		}
	}
}

func (app *App) runJob(ctx context.Context, job *Job) {
	app.updateJob(job, func(j *Job) { j.State = JobRunning })

	var err error
	switch job.Kind {
	case JobUpload:
		err = app.session.SendAsFile(ctx, job.code, job.Filename)
	case JobExec:
		err = app.session.SendMultiline(ctx, job.code)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	app.updateJob(job, func(j *Job) {
		j.Finished = time.Now().Format(time.RFC3339)
		if err != nil {
			j.State = JobFailed
			j.Error = err.Error()
		} else {
			j.State = JobDone
		}
	})

	if err != nil {
		log.Printf("Job %s failed: %v", job.ID, err)
	} else {
		log.Printf("Job %s done", job.ID)
	}
}

func (app *App) addJobLogEntry(job *Job) {
	app.jobLogMutex.Lock()
	app.jobLog = append([]*Job{job}, app.jobLog...)
	if len(app.jobLog) > app.config.JobLogSize {
		app.jobLog = app.jobLog[:app.config.JobLogSize]
	}
	snapshot := *job
	app.jobLogMutex.Unlock()

	app.announceJob(snapshot)
}

func (app *App) updateJob(job *Job, change func(*Job)) {
	app.jobLogMutex.Lock()
	change(job)
	snapshot := *job
	app.jobLogMutex.Unlock()

	app.announceJob(snapshot)
}

func (app *App) recentJobs() []Job {
	app.jobLogMutex.RLock()
	defer app.jobLogMutex.RUnlock()

	jobs := make([]Job, len(app.jobLog))
	for i, j := range app.jobLog {
		jobs[i] = *j
	}
	return jobs
}

func (app *App) announceJob(job Job) {
	app.broadcast(WebSocketMessage{Type: "job", Data: job})
	app.publishJob(job)
}

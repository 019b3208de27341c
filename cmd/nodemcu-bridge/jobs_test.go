package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nodemcu-bridge.go/nodemcu"
)

// promptPort answers every write with the interpreter prompt unless silent.
type promptPort struct {
	rx     chan []byte
	done   chan struct{}
	once   sync.Once
	silent bool

	mu     sync.Mutex
	writes []string
}

func newPromptPort() *promptPort {
	return &promptPort{rx: make(chan []byte, 16), done: make(chan struct{})}
}

func (p *promptPort) Read(b []byte) (int, error) {
	select {
	case c := <-p.rx:
		return copy(b, c), nil
	case <-p.done:
		return 0, errors.New("closed")
	}
}

func (p *promptPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, string(b))
	p.mu.Unlock()
	if !p.silent {
		p.rx <- []byte("> ")
	}
	return len(b), nil
}

func (p *promptPort) Drain() error { return nil }

func (p *promptPort) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *promptPort) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

type singlePortTransport struct{ port *promptPort }

func (t singlePortTransport) Ports() ([]string, error) { return []string{"/dev/fake"}, nil }

func (t singlePortTransport) Open(string, int) (nodemcu.Port, error) { return t.port, nil }

func testApp(t *testing.T, port *promptPort) *App {
	t.Helper()
	app := newApp()
	app.config.applyDefaults()
	app.config.JobLogSize = 3
	app.config.Serial.StepTimeoutMs = 100
	app.transport = singlePortTransport{port: port}
	if err := app.attachDevice("/dev/fake"); err != nil {
		t.Fatalf("attachDevice: %v", err)
	}
	t.Cleanup(func() { app.session.Disconnect() })
	return app
}

func TestRunJob_Upload(t *testing.T) {
	port := newPromptPort()
	app := testApp(t, port)

	job, err := app.enqueueJob(JobUpload, "init.lua", "a\nb", "http")
	if err != nil {
		t.Fatalf("enqueueJob: %v", err)
	}
	app.runJob(context.Background(), <-app.jobs)

	jobs := app.recentJobs()
	if len(jobs) != 1 || jobs[0].ID != job.ID || jobs[0].State != JobDone || jobs[0].Finished == "" {
		t.Fatalf("jobs = %+v", jobs)
	}
	want := nodemcu.EncodeFile("a\nb", "init.lua")
	if got := port.sent(); strings.Join(got, "") != strings.Join(want, "") {
		t.Errorf("sent %q, want %q", got, want)
	}
}

func TestRunJob_StalledUploadFails(t *testing.T) {
	port := newPromptPort()
	port.silent = true
	app := testApp(t, port)

	if _, err := app.enqueueJob(JobExec, "", "print(1)", "mqtt"); err != nil {
		t.Fatalf("enqueueJob: %v", err)
	}
	app.runJob(context.Background(), <-app.jobs)

	job := app.recentJobs()[0]
	if job.State != JobFailed || !strings.Contains(job.Error, "upload stalled") {
		t.Errorf("job = %+v", job)
	}
}

func TestEnqueueJob_Validation(t *testing.T) {
	app := testApp(t, newPromptPort())

	if _, err := app.enqueueJob(JobUpload, "../x", "print(1)", "http"); err == nil {
		t.Error("bad filename accepted")
	}
	if _, err := app.enqueueJob(JobExec, "", "", "http"); err == nil {
		t.Error("empty code accepted")
	}
	if n := len(app.recentJobs()); n != 0 {
		t.Errorf("%d rejected jobs logged", n)
	}
}

func TestEnqueueJob_QueueFullAndLogTrim(t *testing.T) {
	app := testApp(t, newPromptPort())
	app.jobs = make(chan *Job, 2)

	for i := 0; i < 2; i++ {
		if _, err := app.enqueueJob(JobExec, "", "x=1", "http"); err != nil {
			t.Fatalf("enqueueJob %d: %v", i, err)
		}
	}
	if _, err := app.enqueueJob(JobExec, "", "x=1", "http"); !errors.Is(err, errQueueFull) {
		t.Fatalf("err = %v, want errQueueFull", err)
	}
	app.enqueueJob(JobExec, "", "x=1", "http")

	jobs := app.recentJobs()
	if len(jobs) != 3 {
		t.Fatalf("job log has %d entries, want 3", len(jobs))
	}
	if jobs[0].State != JobFailed || jobs[0].Error != errQueueFull.Error() {
		t.Errorf("newest job = %+v, want failed with queue full", jobs[0])
	}
}

func TestRunJobs_StopsOnCancel(t *testing.T) {
	app := testApp(t, newPromptPort())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.runJobs(ctx)
		close(done)
	}()

	if _, err := app.enqueueJob(JobExec, "", "x=1\ny=2", "http"); err != nil {
		t.Fatalf("enqueueJob: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for app.recentJobs()[0].State != JobDone && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s := app.recentJobs()[0].State; s != JobDone {
		t.Errorf("state = %s, want done", s)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runJobs did not stop")
	}
}

func TestHandleUpload(t *testing.T) {
	app := testApp(t, newPromptPort())
	srv := httptest.NewServer(app.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/upload", "application/json",
		strings.NewReader(`{"filename":"init.lua","code":"print(1)"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.Kind != JobUpload || job.State != JobQueued {
		t.Errorf("job = %+v", job)
	}

	resp, err = http.Post(srv.URL+"/api/upload", "application/json", strings.NewReader(`{"filename":"","code":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty filename status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/exec")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/exec status = %d", resp.StatusCode)
	}
}

func TestExcludingTransport(t *testing.T) {
	tr := excludingTransport{Transport: singlePortTransport{}, exclude: "/dev/fake"}
	ports, err := tr.Ports()
	if err != nil || len(ports) != 0 {
		t.Errorf("Ports = %v, %v", ports, err)
	}
}

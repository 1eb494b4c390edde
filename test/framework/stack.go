// Package framework spins up a complete in-process fable deployment
// for end-to-end tests: a miniredis store, the HTTP API on a test
// listener, and real workers running the real pipeline against
// scriptable engine stubs.
package framework

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/taleweave/fable/pkg/api"
	"github.com/taleweave/fable/pkg/client"
	"github.com/taleweave/fable/pkg/config"
	"github.com/taleweave/fable/pkg/dispatch"
	"github.com/taleweave/fable/pkg/engine"
	"github.com/taleweave/fable/pkg/janitor"
	"github.com/taleweave/fable/pkg/pipeline"
	"github.com/taleweave/fable/pkg/repository"
	"github.com/taleweave/fable/pkg/results"
	"github.com/taleweave/fable/pkg/store"
	"github.com/taleweave/fable/pkg/uploads"
	"github.com/taleweave/fable/pkg/worker"
)

// Options tune the deployment. Zero values pick defaults suited to
// fast in-process tests.
type Options struct {
	Workers       int // workers started immediately
	WorkerThreads int // pool size per worker, default 2
	BatchSize     int // claim batch, default 5
	RetryLimit    int // default 3
}

// Stack is one full deployment. Every field is live and shared with
// the running components, so tests can reach below the HTTP surface
// when a scenario calls for it.
type Stack struct {
	Cfg     *config.Config
	Mini    *miniredis.Miniredis
	Store   store.Store
	Repo    *repository.TaskRepository
	Disp    *dispatch.Dispatcher
	Results *results.ResultStore
	Uploads *uploads.Manager
	Janitor *janitor.Janitor
	STT     *StubSTT
	MT      *StubMT
	Metrics *StubMetrics
	Engines *engine.Bundle
	API     *httptest.Server
	Client  *client.Client

	t       *testing.T
	workers []*workerHandle
}

type workerHandle struct {
	w    *worker.Worker
	done chan error
}

// NewStack builds and starts a deployment. Cleanup is registered on t:
// workers drain, then the API server and store close.
func NewStack(t *testing.T, opts Options) *Stack {
	t.Helper()

	if opts.WorkerThreads == 0 {
		opts.WorkerThreads = 2
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 5
	}
	if opts.RetryLimit == 0 {
		opts.RetryLimit = 3
	}

	mr := miniredis.RunT(t)
	st, err := store.NewRedisStore(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		SupportedLanguages:      []string{"en", "ja", "zh"},
		TaskRetryLimit:          opts.RetryLimit,
		TaskTimeout:             300,
		WorkerTimeout:           300,
		WorkerMemoryLimit:       90,
		WorkerBatchSize:         opts.BatchSize,
		WorkerMaxThreads:        opts.WorkerThreads,
		WorkerHeartbeatInterval: 1,
		GCInterval:              3600,
		TaskRetention:           24,
		ConsumerIdleLimit:       3600000,
		UploadDir:               t.TempDir(),
		ResultDir:               t.TempDir(),
		MaxFileSize:             1 << 20,
		AllowedAudioFormats:     []string{".mp3"},
		WERThreshold:            0.3,
	}

	repo := repository.NewTaskRepository(st)
	disp, err := dispatch.New(context.Background(), st, repo, cfg)
	require.NoError(t, err)
	res, err := results.NewResultStore(st, cfg.ResultDir)
	require.NoError(t, err)
	up, err := uploads.NewManager(cfg)
	require.NoError(t, err)

	jan := janitor.New(cfg, repo, res, disp, up)
	disp.OnCreate(jan.MaybeRun)

	stt := NewStubSTT()
	mt := NewStubMT()
	sys := NewStubMetrics()
	engines := &engine.Bundle{STT: stt, MT: mt, Metrics: sys}

	registry := worker.NewRegistry(st)
	srv := api.NewServer(cfg, api.Deps{
		Store:      st,
		Repo:       repo,
		Dispatcher: disp,
		Results:    res,
		Uploads:    up,
		Workers:    registry,
		System:     sys,
		Version:    "e2e",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	s := &Stack{
		Cfg:     cfg,
		Mini:    mr,
		Store:   st,
		Repo:    repo,
		Disp:    disp,
		Results: res,
		Uploads: up,
		Janitor: jan,
		STT:     stt,
		MT:      mt,
		Metrics: sys,
		Engines: engines,
		API:     ts,
		Client:  client.NewClient(ts.URL),
		t:       t,
	}
	t.Cleanup(s.StopWorkers)

	for i := 0; i < opts.Workers; i++ {
		s.StartWorker()
	}
	return s
}

// StartWorker launches one worker goroutine and returns its id.
func (s *Stack) StartWorker() string {
	s.t.Helper()
	runner := pipeline.NewRunner(s.STT, s.MT, s.Cfg.WERThreshold)
	w := worker.New(s.Cfg, s.Store, s.Repo, s.Disp, s.Results, runner, s.Engines)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	s.workers = append(s.workers, &workerHandle{w: w, done: done})
	return w.ID()
}

// StopWorkers drains every running worker. Safe to call repeatedly.
func (s *Stack) StopWorkers() {
	for _, h := range s.workers {
		h.w.Stop()
	}
	for _, h := range s.workers {
		select {
		case <-h.done:
		case <-time.After(30 * time.Second):
			s.t.Error("worker did not stop within 30s")
		}
	}
	s.workers = nil
}

// SubmitAudio submits the named audio files through the public API
// with source en and target ja.
func (s *Stack) SubmitAudio(t *testing.T, names ...string) *client.TaskAck {
	t.Helper()
	files := make([]client.FileUpload, 0, len(names))
	for _, name := range names {
		files = append(files, client.FileUpload{
			Name:    name,
			Content: strings.NewReader("audio-bytes-" + name),
		})
	}
	ack, err := s.Client.SubmitTask(client.SubmitOptions{
		SourceLanguage:  "en",
		TargetLanguages: []string{"ja"},
		Files:           files,
	})
	require.NoError(t, err)
	return ack
}

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Fabrica/internal/config"
	"github.com/shaiso/Fabrica/internal/domain"
	"github.com/shaiso/Fabrica/internal/execution"
	"github.com/shaiso/Fabrica/internal/server"
)

// --- Fakes ---

// fakeQueue — очередь job-сервера, считающая вызовы lifecycle.
type fakeQueue struct {
	mu            sync.Mutex
	startCalls    int
	shutdownCalls int
	records       []domain.TimelineRecord
}

func (q *fakeQueue) Record(rec domain.TimelineRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, rec)
}

func (q *fakeQueue) Start(_ *domain.JobRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.startCalls++
}

func (q *fakeQueue) Shutdown(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdownCalls++
	return nil
}

func (q *fakeQueue) recorded() []domain.TimelineRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.TimelineRecord, len(q.records))
	copy(out, q.records)
	return out
}

// fakeJobConnector возвращает подготовленную очередь или ошибку.
type fakeJobConnector struct {
	queue   *fakeQueue
	err     error
	gotURL  string
	gotAuth domain.Authorization
}

func (c *fakeJobConnector) Connect(_ context.Context, serverURL string, auth domain.Authorization) (JobServerQueue, error) {
	c.gotURL = serverURL
	c.gotAuth = auth
	if c.err != nil {
		return nil, c.err
	}
	return c.queue, nil
}

// fakeTaskServer — сервер определений задач.
type fakeTaskServer struct {
	hasEndpoint bool
	probeErr    error
}

func (s *fakeTaskServer) HasTaskDefinitionEndpoint(_ context.Context) (bool, error) {
	return s.hasEndpoint, s.probeErr
}

func (s *fakeTaskServer) GetTaskDefinition(_ context.Context, name, version string) (*server.TaskDefinition, error) {
	return &server.TaskDefinition{Name: name, Version: version}, nil
}

func (s *fakeTaskServer) DownloadTask(context.Context, string, string) ([]byte, error) {
	return []byte("zip"), nil
}

// fakeTaskConnector раздаёт серверы по адресу подключения.
type fakeTaskConnector struct {
	servers map[string]*fakeTaskServer
	errs    map[string]error
	calls   []string
}

func (c *fakeTaskConnector) Connect(_ context.Context, serverURL string, _ domain.Authorization) (TaskServer, error) {
	c.calls = append(c.calls, serverURL)
	if err, ok := c.errs[serverURL]; ok {
		return nil, err
	}
	if ts, ok := c.servers[serverURL]; ok {
		return ts, nil
	}
	return &fakeTaskServer{hasEndpoint: true}, nil
}

// fakeSource — источник определений задач.
type fakeSource struct {
	downloadErr   error
	downloadCalls int
}

func (s *fakeSource) Download(_ context.Context, ec *execution.Context, _ []*domain.TaskInstance) error {
	s.downloadCalls++
	if s.downloadErr != nil {
		ec.AddError(s.downloadErr.Error())
	}
	return s.downloadErr
}

func (s *fakeSource) Definition(name, version string) (*server.TaskDefinition, error) {
	return &server.TaskDefinition{Name: name, Version: version}, nil
}

// seqRunner выполняет шаги по порядку, финализируя успехом.
type seqRunner struct {
	called bool
	steps  int
	err    error
}

func (r *seqRunner) Run(ctx context.Context, _ *execution.Context, steps []Step) error {
	r.called = true
	r.steps = len(steps)
	if r.err != nil {
		return r.err
	}
	for _, step := range steps {
		if err := step.Run(ctx); err != nil {
			step.Context().Finalize(domain.ResultFailed)
			continue
		}
		if _, ok := step.Context().Result(); !ok {
			step.Context().Finalize(domain.ResultSucceeded)
		}
	}
	return nil
}

// --- Helpers ---

type testEnv struct {
	orch   *Orchestrator
	queue  *fakeQueue
	jobs   *fakeJobConnector
	tasks  *fakeTaskConnector
	source *fakeSource
	runner *seqRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	queue := &fakeQueue{}
	source := &fakeSource{}
	env := &testEnv{
		queue:  queue,
		jobs:   &fakeJobConnector{queue: queue},
		tasks:  &fakeTaskConnector{},
		source: source,
		runner: &seqRunner{},
	}

	env.orch = New(Config{
		Settings: &config.Settings{
			AgentID:    "agent-1",
			AgentName:  "test-agent",
			ServerURL:  "https://agentserver:9000/",
			WorkFolder: t.TempDir(),
		},
		JobServer:  env.jobs,
		TaskServer: env.tasks,
		TaskSourceFor: func(TaskServer) TaskSource {
			return env.source
		},
		Runner: env.runner,
		TaskHandler: func(context.Context, *execution.Context, TaskSource, *domain.TaskInstance) error {
			return nil
		},
	})
	return env
}

func newTestJob() *domain.JobRequest {
	return &domain.JobRequest{
		RequestID: uuid.New(),
		JobID:     uuid.New(),
		JobName:   "ci build",
		HostType:  "build",
		Variables: domain.Variables{},
		System: &domain.ServiceEndpoint{
			Name: "SystemConnection",
			URL:  "https://remote/jobs",
			Authorization: domain.Authorization{
				Scheme:     domain.AuthSchemeOAuth,
				Parameters: map[string]string{"accessToken": "tok-123"},
			},
		},
		Tasks: []*domain.TaskInstance{
			{InstanceID: uuid.New(), Name: "compile", Version: "1.0.0"},
			{InstanceID: uuid.New(), Name: "test", Version: "2.1.0"},
		},
	}
}

// --- RunJob Tests ---

func TestRunJob_Success(t *testing.T) {
	env := newTestEnv(t)
	job := newTestJob()

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != domain.ResultSucceeded {
		t.Errorf("result = %s, want SUCCEEDED", result)
	}

	if env.queue.startCalls != 1 {
		t.Errorf("queue started %d times, want 1", env.queue.startCalls)
	}
	if env.queue.shutdownCalls != 1 {
		t.Errorf("queue shut down %d times, want 1", env.queue.shutdownCalls)
	}
	if env.source.downloadCalls != 1 {
		t.Errorf("download called %d times, want 1", env.source.downloadCalls)
	}
	if !env.runner.called {
		t.Error("runner should be invoked")
	}
	// build extension: prepare + 2 tasks + finally
	if env.runner.steps != 4 {
		t.Errorf("pipeline has %d steps, want 4", env.runner.steps)
	}

	// Root record lands in the queue after aggregation
	records := env.queue.recorded()
	if len(records) == 0 {
		t.Fatal("expected timeline records in the queue")
	}
	last := records[len(records)-1]
	if last.ID != job.JobID || last.Result != domain.ResultSucceeded {
		t.Errorf("last record = %+v", last)
	}
}

func TestRunJob_NoTasks(t *testing.T) {
	env := newTestEnv(t)
	job := newTestJob()
	job.Tasks = []*domain.TaskInstance{}

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != domain.ResultSucceeded {
		t.Errorf("result = %s, want SUCCEEDED", result)
	}
	// Only the build extension steps remain
	if env.runner.steps != 2 {
		t.Errorf("pipeline has %d steps, want 2", env.runner.steps)
	}
}

func TestRunJob_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		job  *domain.JobRequest
	}{
		{"nil request", nil},
		{"nil system", func() *domain.JobRequest { j := newTestJob(); j.System = nil; return j }()},
		{"nil variables", func() *domain.JobRequest { j := newTestJob(); j.Variables = nil; return j }()},
		{"nil tasks", func() *domain.JobRequest { j := newTestJob(); j.Tasks = nil; return j }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.orch.RunJob(context.Background(), tt.job)
			if !errors.Is(err, ErrInvalidJobRequest) {
				t.Errorf("expected ErrInvalidJobRequest, got %v", err)
			}
			if result != domain.ResultFailed {
				t.Errorf("result = %s, want FAILED", result)
			}
		})
	}

	// Validation happens before any connection attempt
	if env.jobs.gotURL != "" {
		t.Error("invalid request must not reach the job server")
	}
	if env.queue.startCalls != 0 || env.queue.shutdownCalls != 0 {
		t.Error("queue lifecycle must not start for invalid requests")
	}
}

func TestRunJob_JobServerConnectFailure(t *testing.T) {
	env := newTestEnv(t)
	env.jobs.err = errors.New("connection refused")
	job := newTestJob()

	result, err := env.orch.RunJob(context.Background(), job)
	if !errors.Is(err, ErrJobServerConnect) {
		t.Fatalf("expected ErrJobServerConnect, got %v", err)
	}
	if result != domain.ResultFailed {
		t.Errorf("result = %s, want FAILED", result)
	}
	if env.queue.startCalls != 0 {
		t.Error("queue must not start when connect fails")
	}
}

func TestRunJob_AccessTokenCopiedWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	job := newTestJob()
	job.Variables.Set(domain.VarEnableAccessToken, "true")

	if _, err := env.orch.RunJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, ok := job.Variables.Get(domain.VarAccessToken)
	if !ok || token != "tok-123" {
		t.Errorf("access token variable = %q ok=%v", token, ok)
	}
}

func TestRunJob_AccessTokenNotCopiedByDefault(t *testing.T) {
	env := newTestEnv(t)
	job := newTestJob()

	if _, err := env.orch.RunJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := job.Variables.Get(domain.VarAccessToken); ok {
		t.Error("access token must not be copied without the feature flag")
	}
}

func TestRunJob_SystemURLNormalized(t *testing.T) {
	env := newTestEnv(t)
	job := newTestJob()

	if _, err := env.orch.RunJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Job server connection goes to the rewritten URL
	if env.jobs.gotURL != "https://agentserver:9000/jobs" {
		t.Errorf("connect URL = %q", env.jobs.gotURL)
	}
	if env.jobs.gotAuth.AccessToken() != "tok-123" {
		t.Error("authorization should be passed through to the connector")
	}
}

func TestRunJob_DownloadFailure(t *testing.T) {
	env := newTestEnv(t)
	env.source.downloadErr = errors.New("catalog unavailable")
	job := newTestJob()

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("download failure must not surface as error: %v", err)
	}
	if result != domain.ResultFailed {
		t.Errorf("result = %s, want FAILED", result)
	}
	if env.runner.called {
		t.Error("runner must not run when download fails")
	}
	if env.queue.shutdownCalls != 1 {
		t.Errorf("queue shut down %d times, want 1", env.queue.shutdownCalls)
	}
}

func TestRunJob_DownloadCanceled(t *testing.T) {
	env := newTestEnv(t)
	env.source.downloadErr = context.Canceled
	job := newTestJob()

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != domain.ResultCanceled {
		t.Errorf("result = %s, want CANCELED", result)
	}
	if env.runner.called {
		t.Error("runner must not run after cancellation")
	}
	if env.queue.shutdownCalls != 1 {
		t.Errorf("queue shut down %d times, want 1", env.queue.shutdownCalls)
	}
}

func TestRunJob_RunnerCanceled(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = context.Canceled
	job := newTestJob()

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != domain.ResultCanceled {
		t.Errorf("result = %s, want CANCELED", result)
	}
	if env.queue.shutdownCalls != 1 {
		t.Errorf("queue shut down %d times, want 1", env.queue.shutdownCalls)
	}
}

func TestRunJob_RunnerInfrastructureFailure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = errors.New("worker crashed")
	job := newTestJob()

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != domain.ResultFailed {
		t.Errorf("result = %s, want FAILED", result)
	}
}

func TestRunJob_AgentVariablesSeeded(t *testing.T) {
	env := newTestEnv(t)
	job := newTestJob()

	var gotAgentName, gotJobName string
	env.orch.taskHandler = func(_ context.Context, ec *execution.Context, _ TaskSource, _ *domain.TaskInstance) error {
		gotAgentName, _ = ec.Variable(domain.VarAgentName)
		gotJobName, _ = ec.Variable(domain.VarAgentJobName)
		return nil
	}

	if _, err := env.orch.RunJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotAgentName != "test-agent" {
		t.Errorf("agent.name = %q", gotAgentName)
	}
	if gotJobName != "ci build" {
		t.Errorf("agent.jobName = %q", gotJobName)
	}
}

func TestRunJob_EndpointDataExpanded(t *testing.T) {
	env := newTestEnv(t)
	job := newTestJob()
	job.Variables.Set("registry.name", "internal")
	job.Endpoints = []*domain.ServiceEndpoint{
		{
			Name: "registry",
			URL:  "https://registry.local/",
			Data: map[string]string{"feed": "feeds/$(registry.name)/v2"},
		},
	}

	if _, err := env.orch.RunJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := job.Endpoints[0].Data["feed"]; got != "feeds/internal/v2" {
		t.Errorf("endpoint data = %q", got)
	}
}

// --- Task Source Resolution Tests ---

func TestResolveTaskSource_PrefersTaskDefinitionsURI(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.servers = map[string]*fakeTaskServer{
		"https://agentserver:9000/tasks": {hasEndpoint: true},
	}
	job := newTestJob()
	// Gets rewritten to the agent server host before resolution
	job.Variables.Set(domain.VarTaskDefinitionsURI, "https://remote/tasks")
	job.Variables.Set(domain.VarCollectionURI, "https://remote/collection")

	if _, err := env.orch.RunJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.tasks.calls) == 0 || env.tasks.calls[0] != "https://agentserver:9000/tasks" {
		t.Errorf("first candidate should be the task definitions URI, calls = %v", env.tasks.calls)
	}
	// First candidate worked: no fallback probing
	if len(env.tasks.calls) != 1 {
		t.Errorf("expected 1 connect call, got %v", env.tasks.calls)
	}
}

func TestResolveTaskSource_FallsBackToConfiguredServer(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.servers = map[string]*fakeTaskServer{
		// Collection URI reachable but has no task catalog
		"https://agentserver:9000/collection": {hasEndpoint: false},
	}
	job := newTestJob()
	job.Variables.Set(domain.VarCollectionURI, "https://remote/collection")

	if _, err := env.orch.RunJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := env.tasks.calls[len(env.tasks.calls)-1]
	if last != "https://agentserver:9000/" {
		t.Errorf("fallback should use the configured server URL, calls = %v", env.tasks.calls)
	}
}

func TestResolveTaskSource_UnreachableCandidateSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.errs = map[string]error{
		"https://agentserver:9000/tasks": errors.New("refused"),
	}
	env.tasks.servers = map[string]*fakeTaskServer{
		"https://agentserver:9000/collection": {hasEndpoint: true},
	}
	job := newTestJob()
	job.Variables.Set(domain.VarTaskDefinitionsURI, "https://remote/tasks")
	job.Variables.Set(domain.VarCollectionURI, "https://remote/collection")

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != domain.ResultSucceeded {
		t.Errorf("result = %s", result)
	}
	if len(env.tasks.calls) != 2 {
		t.Errorf("expected 2 connect calls, got %v", env.tasks.calls)
	}
}

func TestResolveTaskSource_AllFail(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.errs = map[string]error{
		"https://agentserver:9000/": errors.New("refused"),
	}
	job := newTestJob()

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("resolve failure must not surface as error: %v", err)
	}
	if result != domain.ResultFailed {
		t.Errorf("result = %s, want FAILED", result)
	}
	// Queue was started before resolution: still exactly one shutdown
	if env.queue.shutdownCalls != 1 {
		t.Errorf("queue shut down %d times, want 1", env.queue.shutdownCalls)
	}
}

func TestResolveTaskSource_CancellationAborts(t *testing.T) {
	env := newTestEnv(t)
	env.tasks.errs = map[string]error{
		"https://agentserver:9000/tasks": context.Canceled,
	}
	job := newTestJob()
	job.Variables.Set(domain.VarTaskDefinitionsURI, "https://remote/tasks")

	result, err := env.orch.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != domain.ResultCanceled {
		t.Errorf("result = %s, want CANCELED", result)
	}
	// Cancellation stops candidate probing
	if len(env.tasks.calls) != 1 {
		t.Errorf("expected 1 connect call, got %v", env.tasks.calls)
	}
}

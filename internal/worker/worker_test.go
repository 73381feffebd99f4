package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/ddl-worker/internal/config"
	"github.com/cuongbtq/ddl-worker/internal/coordination"
	"github.com/cuongbtq/ddl-worker/internal/query"
	"github.com/cuongbtq/ddl-worker/internal/taskqueue"
	"github.com/cuongbtq/ddl-worker/internal/worker/domain"
	"github.com/cuongbtq/ddl-worker/internal/worker/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoot = "/clickhouse/task_queue/ddl"
	testHost = "db-1"
	testPort = 9000
)

var testQueuePath = testRoot + "/db-1:9000/create"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// faultyStore is a MemoryStore with injectable failures
type faultyStore struct {
	*coordination.MemoryStore

	mu               sync.Mutex
	childrenCalls    int
	childrenFailures int
	getErrs          map[string]error
	removeFailures   map[string]int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		MemoryStore:    coordination.NewMemoryStore(),
		getErrs:        map[string]error{},
		removeFailures: map[string]int{},
	}
}

func (s *faultyStore) Children(ctx context.Context, nodePath string) ([]string, error) {
	s.mu.Lock()
	s.childrenCalls++
	if s.childrenFailures > 0 {
		s.childrenFailures--
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: connection refused", coordination.ErrUnavailable)
	}
	s.mu.Unlock()

	return s.MemoryStore.Children(ctx, nodePath)
}

func (s *faultyStore) Get(ctx context.Context, nodePath string) ([]byte, error) {
	s.mu.Lock()
	err := s.getErrs[nodePath]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return s.MemoryStore.Get(ctx, nodePath)
}

func (s *faultyStore) Remove(ctx context.Context, nodePath string) error {
	s.mu.Lock()
	if s.removeFailures[nodePath] > 0 {
		s.removeFailures[nodePath]--
		s.mu.Unlock()
		return fmt.Errorf("%w: session expired", coordination.ErrUnavailable)
	}
	s.mu.Unlock()

	return s.MemoryStore.Remove(ctx, nodePath)
}

func (s *faultyStore) ChildrenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.childrenCalls
}

func (s *faultyStore) seed(t *testing.T, taskID, command string) string {
	t.Helper()
	taskPath := taskqueue.TaskPath(testQueuePath, taskID)
	require.NoError(t, s.Create(context.Background(), taskPath, []byte(command)))
	return taskPath
}

func (s *faultyStore) exists(t *testing.T, taskPath string) bool {
	t.Helper()
	_, err := s.MemoryStore.Get(context.Background(), taskPath)
	if errors.Is(err, coordination.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

// recordingEngine records executed commands and fails or panics on request
type recordingEngine struct {
	mu       sync.Mutex
	executed []string
	failOn   map[string]error
	panicOn  map[string]bool
	started  chan string
	release  chan struct{}
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{
		failOn:  map[string]error{},
		panicOn: map[string]bool{},
	}
}

func (e *recordingEngine) Execute(ctx context.Context, command string, session *query.Session) error {
	if e.started != nil {
		select {
		case e.started <- command:
		default:
		}
	}
	if e.release != nil {
		<-e.release
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.panicOn[command] {
		panic("engine exploded")
	}
	e.executed = append(e.executed, command)
	return e.failOn[command]
}

func (e *recordingEngine) Executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	bodies []string
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, body []byte, contentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, string(body))
	return p.err
}

func validSource() config.Params {
	return config.Params{"ddl_worker.task_queue_path": testRoot + "/"}
}

// newPassWorker builds a worker without starting its loop so passes can be
// driven directly.
func newPassWorker(store storage.NodeStore, engine query.Engine, publisher Publisher) *Worker {
	logger := discardLogger()
	return &Worker{
		logger:       logger,
		storage:      storage.NewStorage(store, testQueuePath, logger),
		engine:       engine,
		session:      &query.Session{},
		publisher:    publisher,
		hostAddress:  "db-1:9000",
		pollInterval: time.Hour,
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  config.Params
		wantErr error
	}{
		{
			name:    "unknown key",
			source:  config.Params{"ddl_worker.task_queue_path": testRoot, "ddl_worker.pool_size": "4"},
			wantErr: domain.ErrUnknownConfigParameter,
		},
		{
			name:    "missing section",
			source:  config.Params{"logging.level": "info"},
			wantErr: domain.ErrMissingConfigParameter,
		},
		{
			name:    "empty task_queue_path",
			source:  config.Params{"ddl_worker.task_queue_path": ""},
			wantErr: domain.ErrMissingConfigParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFaultyStore()

			w, err := New(&Config{
				Logger:       discardLogger(),
				Store:        store,
				Engine:       newRecordingEngine(),
				Source:       tt.source,
				Prefix:       config.DefaultWorkerPrefix,
				Host:         testHost,
				Port:         testPort,
				PollInterval: 5 * time.Millisecond,
			})

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Nil(t, w)

			// no loop was started
			time.Sleep(30 * time.Millisecond)
			assert.Equal(t, 0, store.ChildrenCalls())
		})
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	_, err := New(&Config{Engine: newRecordingEngine(), Source: validSource()})
	assert.Error(t, err)

	_, err = New(&Config{Store: newFaultyStore(), Source: validSource()})
	assert.Error(t, err)

	_, err = New(&Config{Store: newFaultyStore(), Engine: newRecordingEngine()})
	assert.Error(t, err)
}

func TestNew_DerivesQueuePath(t *testing.T) {
	w, err := New(&Config{
		Logger:       discardLogger(),
		Store:        newFaultyStore(),
		Engine:       newRecordingEngine(),
		Source:       validSource(),
		Prefix:       config.DefaultWorkerPrefix,
		Host:         testHost,
		Port:         testPort,
		PollInterval: time.Hour,
	})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "db-1:9000", w.HostAddress())
	assert.Equal(t, testQueuePath, w.QueuePath())
}

func TestProcessTasks_ExecutesEachTaskOnce(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()

	commands := []string{
		"CREATE TABLE a (id INT)",
		"CREATE TABLE b (id INT)",
		"ALTER TABLE a ADD COLUMN name TEXT",
	}
	var paths []string
	for i, command := range commands {
		paths = append(paths, store.seed(t, fmt.Sprintf("query-%d", i), command))
	}

	w := newPassWorker(store, engine, nil)
	result, err := w.processTasks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, commands, engine.Executed())
	assert.Equal(t, passResult{listed: 3, executed: 3}, result)
	for _, p := range paths {
		assert.False(t, store.exists(t, p), "task %s should be removed", p)
	}
}

func TestProcessTasks_EmptyPayloadIsRemovedWithoutExecuting(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()
	taskPath := store.seed(t, "query-0", "")

	w := newPassWorker(store, engine, nil)
	result, err := w.processTasks(context.Background())
	require.NoError(t, err)

	assert.Empty(t, engine.Executed())
	assert.Equal(t, passResult{listed: 1, skipped: 1}, result)
	assert.False(t, store.exists(t, taskPath))
}

func TestProcessTasks_FailedTaskStaysAndSiblingsRun(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()
	engine.failOn["DROP TABLE missing"] = errors.New(`table "missing" does not exist`)

	first := store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	failing := store.seed(t, "query-1", "DROP TABLE missing")
	last := store.seed(t, "query-2", "CREATE TABLE c (id INT)")

	w := newPassWorker(store, engine, nil)
	result, err := w.processTasks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "DROP TABLE missing", "CREATE TABLE c (id INT)"}, engine.Executed())
	assert.Equal(t, passResult{listed: 3, executed: 2, failed: 1}, result)
	assert.False(t, store.exists(t, first))
	assert.True(t, store.exists(t, failing))
	assert.False(t, store.exists(t, last))

	// the failing task is retried on every pass
	_, err = w.processTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE missing", engine.Executed()[3])
	assert.True(t, store.exists(t, failing))
}

func TestProcessTasks_FetchFailureSkipsTask(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()

	broken := store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	store.getErrs[broken] = fmt.Errorf("%w: read timeout", coordination.ErrUnavailable)
	ok := store.seed(t, "query-1", "CREATE TABLE b (id INT)")

	w := newPassWorker(store, engine, nil)
	result, err := w.processTasks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"CREATE TABLE b (id INT)"}, engine.Executed())
	assert.Equal(t, 1, result.failed)
	assert.True(t, store.exists(t, broken))
	assert.False(t, store.exists(t, ok))
}

func TestProcessTasks_PanicIsContained(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()
	engine.panicOn["BOOM"] = true

	exploding := store.seed(t, "query-0", "BOOM")
	ok := store.seed(t, "query-1", "CREATE TABLE b (id INT)")

	w := newPassWorker(store, engine, nil)
	result, err := w.processTasks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, passResult{listed: 2, executed: 1, failed: 1}, result)
	assert.True(t, store.exists(t, exploding))
	assert.False(t, store.exists(t, ok))
}

func TestProcessTask_ErrorCarriesStep(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()
	engine.failOn["DROP TABLE x"] = errors.New("boom")
	engine.panicOn["PANIC"] = true
	store.seed(t, "query-0", "DROP TABLE x")
	store.seed(t, "query-1", "PANIC")
	removeFails := store.seed(t, "query-2", "SELECT 1")
	store.removeFailures[removeFails] = 1

	w := newPassWorker(store, engine, nil)

	tests := []struct {
		taskID   string
		wantStep string
		wantErr  error
	}{
		{taskID: "query-0", wantStep: domain.StepExecute},
		{taskID: "query-1", wantStep: domain.StepExecute, wantErr: domain.ErrTaskPanicked},
		{taskID: "query-2", wantStep: domain.StepRemove, wantErr: coordination.ErrUnavailable},
		{taskID: "query-9", wantStep: domain.StepFetch, wantErr: coordination.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.taskID, func(t *testing.T) {
			_, _, err := w.processTask(context.Background(), tt.taskID)
			require.Error(t, err)

			var taskErr *domain.TaskError
			require.True(t, errors.As(err, &taskErr))
			assert.Equal(t, tt.wantStep, taskErr.Step)
			assert.Equal(t, taskqueue.TaskPath(testQueuePath, tt.taskID), taskErr.Path)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

// A task whose removal fails after a successful execution runs again on the
// next pass. This is the documented at-least-once behaviour.
func TestProcessTasks_RemoveFailureReexecutesNextPass(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()
	taskPath := store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	store.removeFailures[taskPath] = 1

	w := newPassWorker(store, engine, nil)

	result, err := w.processTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, passResult{listed: 1, failed: 1}, result)
	assert.True(t, store.exists(t, taskPath))

	result, err = w.processTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, passResult{listed: 1, executed: 1}, result)
	assert.False(t, store.exists(t, taskPath))

	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE TABLE a (id INT)"}, engine.Executed())
}

func TestProcessTasks_ListingFailure(t *testing.T) {
	store := newFaultyStore()
	store.childrenFailures = 1

	w := newPassWorker(store, newRecordingEngine(), nil)
	_, err := w.processTasks(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, coordination.ErrUnavailable))
}

func TestProcessTasks_MissingQueueIsNotFound(t *testing.T) {
	w := newPassWorker(newFaultyStore(), newRecordingEngine(), nil)
	_, err := w.processTasks(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, coordination.ErrNotFound))
}

func TestProcessTasks_PublishesEvents(t *testing.T) {
	store := newFaultyStore()
	engine := newRecordingEngine()
	engine.failOn["DROP TABLE x"] = errors.New("boom")
	publisher := &recordingPublisher{err: errors.New("broker down")}

	store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	store.seed(t, "query-1", "")
	store.seed(t, "query-2", "DROP TABLE x")

	w := newPassWorker(store, engine, publisher)
	result, err := w.processTasks(context.Background())
	require.NoError(t, err)

	// publish failures do not change task outcomes
	assert.Equal(t, passResult{listed: 3, executed: 1, skipped: 1, failed: 1}, result)

	require.Len(t, publisher.bodies, 3)
	assert.Contains(t, publisher.bodies[0], `"status":"COMPLETED"`)
	assert.Contains(t, publisher.bodies[0], `"query":"CREATE TABLE a (id INT)"`)
	assert.Contains(t, publisher.bodies[1], `"status":"SKIPPED_EMPTY"`)
	assert.Contains(t, publisher.bodies[2], `"status":"FAILED"`)
	assert.Contains(t, publisher.bodies[2], `"error":`)
	assert.Contains(t, publisher.bodies[2], `"host":"db-1:9000"`)
}

func startWorker(t *testing.T, store *faultyStore, engine query.Engine, interval time.Duration) *Worker {
	t.Helper()

	w, err := New(&Config{
		Logger:       discardLogger(),
		Store:        store,
		Engine:       engine,
		Source:       validSource(),
		Prefix:       config.DefaultWorkerPrefix,
		Host:         testHost,
		Port:         testPort,
		PollInterval: interval,
	})
	require.NoError(t, err)
	return w
}

func TestWorker_RecoversFromListingFailures(t *testing.T) {
	store := newFaultyStore()
	store.childrenFailures = 2
	taskPath := store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	engine := newRecordingEngine()

	w := startWorker(t, store, engine, 10*time.Millisecond)
	defer w.Stop()

	require.Eventually(t, func() bool {
		return len(engine.Executed()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, store.ChildrenCalls(), 3)
	assert.False(t, store.exists(t, taskPath))
}

func TestWorker_PicksUpTasksAddedBetweenPasses(t *testing.T) {
	store := newFaultyStore()
	store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	engine := newRecordingEngine()

	w := startWorker(t, store, engine, 10*time.Millisecond)
	defer w.Stop()

	require.Eventually(t, func() bool { return len(engine.Executed()) == 1 }, 2*time.Second, 5*time.Millisecond)

	store.seed(t, "query-1", "CREATE TABLE b (id INT)")

	require.Eventually(t, func() bool { return len(engine.Executed()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}, engine.Executed())
}

func TestWorker_StopWhileWaitingReturnsPromptly(t *testing.T) {
	store := newFaultyStore()
	store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	engine := newRecordingEngine()

	w := startWorker(t, store, engine, time.Hour)

	require.Eventually(t, func() bool { return len(engine.Executed()) == 1 }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	w.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, store.ChildrenCalls())
}

func TestWorker_StopDuringPassWaitsForPass(t *testing.T) {
	store := newFaultyStore()
	first := store.seed(t, "query-0", "CREATE TABLE a (id INT)")
	second := store.seed(t, "query-1", "CREATE TABLE b (id INT)")

	engine := newRecordingEngine()
	engine.started = make(chan string, 1)
	engine.release = make(chan struct{})

	w := startWorker(t, store, engine, time.Hour)

	select {
	case <-engine.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine was never called")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was still executing")
	case <-time.After(100 * time.Millisecond):
	}

	close(engine.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the pass finished")
	}

	// the whole pass completed and no further pass started
	assert.Len(t, engine.Executed(), 2)
	assert.False(t, store.exists(t, first))
	assert.False(t, store.exists(t, second))
	assert.Equal(t, 1, store.ChildrenCalls())
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w := startWorker(t, newFaultyStore(), newRecordingEngine(), time.Hour)

	w.Stop()
	assert.NotPanics(t, w.Stop)
	assert.NoError(t, w.Close())
}

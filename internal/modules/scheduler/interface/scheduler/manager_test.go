package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"NotaLink/internal/config"
	"NotaLink/internal/modules/scheduler/domain/entity"
	"NotaLink/internal/modules/scheduler/domain/repository"
	"NotaLink/internal/modules/scheduler/infrastructure/persistence"
)

type stubExecutor struct {
	mu      sync.Mutex
	runs    []int64
	err     error
	panicOn int64
}

func (s *stubExecutor) Execute(ctx context.Context, task *entity.ScheduledTask) (string, error) {
	s.mu.Lock()
	s.runs = append(s.runs, task.ID)
	s.mu.Unlock()
	if s.panicOn != 0 && task.ID == s.panicOn {
		panic("executor blew up")
	}
	if s.err != nil {
		return "", s.err
	}
	return "done", nil
}

func (s *stubExecutor) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func newTestManager(taskRepo repository.TaskRepository, execRepo repository.ExecutionRepository, exec *stubExecutor) *SchedulerManager {
	return NewSchedulerManager(taskRepo, execRepo, nil, exec,
		config.SchedulerConfig{PollSeconds: 1, ClaimBatch: 10})
}

func createDue(t *testing.T, repo repository.TaskRepository, triggerType int, everySeconds int64) *entity.ScheduledTask {
	t.Helper()
	due := time.Now().Add(-time.Second)
	task := &entity.ScheduledTask{
		UserID:       "user-1",
		Title:        "ping",
		TriggerType:  triggerType,
		TriggerAt:    &due,
		EverySeconds: everySeconds,
		ActionType:   entity.ActionSendMessage,
		Enabled:      true,
		NextRunAt:    due,
	}
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestOneTimeTaskDisabledNotDeleted(t *testing.T) {
	taskRepo := persistence.NewMemoryTaskRepository()
	execRepo := persistence.NewMemoryExecutionRepository()
	executor := &stubExecutor{}
	m := newTestManager(taskRepo, execRepo, executor)

	task := createDue(t, taskRepo, entity.TriggerOnce, 0)

	m.pollAndExecute()
	m.wg.Wait()

	stored, err := taskRepo.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("task must survive its firing: %v", err)
	}
	if stored.Enabled {
		t.Fatal("one-time task must be disabled after firing")
	}
	if stored.LastRunAt == nil {
		t.Fatal("last run must be recorded")
	}
	if stored.ClaimOwner != "" {
		t.Fatalf("claim must be released, got %q", stored.ClaimOwner)
	}

	execs, _ := execRepo.ListByTask(context.Background(), task.ID, 10)
	if len(execs) != 1 || execs[0].Outcome != entity.ExecSuccess {
		t.Fatalf("expected one successful execution row, got %+v", execs)
	}
}

func TestIntervalTaskAdvancesBeforeExecution(t *testing.T) {
	taskRepo := persistence.NewMemoryTaskRepository()
	execRepo := persistence.NewMemoryExecutionRepository()
	executor := &stubExecutor{}
	m := newTestManager(taskRepo, execRepo, executor)

	task := createDue(t, taskRepo, entity.TriggerInterval, 3600)

	before := time.Now()
	m.pollAndExecute()
	m.wg.Wait()

	stored, _ := taskRepo.GetByID(context.Background(), task.ID)
	if !stored.Enabled {
		t.Fatal("recurring task must stay enabled")
	}
	if !stored.NextRunAt.After(before) {
		t.Fatalf("next run must strictly advance, got %v", stored.NextRunAt)
	}

	// 已推进的任务在同一轮内不会再被认领
	m.pollAndExecute()
	m.wg.Wait()
	if executor.runCount() != 1 {
		t.Fatalf("advanced task must not fire again, runs=%d", executor.runCount())
	}
}

func TestFailingExecutionStillRecorded(t *testing.T) {
	taskRepo := persistence.NewMemoryTaskRepository()
	execRepo := persistence.NewMemoryExecutionRepository()
	executor := &stubExecutor{err: errors.New("delivery broke")}
	m := newTestManager(taskRepo, execRepo, executor)

	task := createDue(t, taskRepo, entity.TriggerOnce, 0)

	m.pollAndExecute()
	m.wg.Wait()

	execs, _ := execRepo.ListByTask(context.Background(), task.ID, 10)
	if len(execs) != 1 || execs[0].Outcome != entity.ExecFailure {
		t.Fatalf("failure must still produce exactly one row, got %+v", execs)
	}
	if !strings.Contains(execs[0].Summary, "delivery broke") {
		t.Fatalf("failure row should carry the reason, got %q", execs[0].Summary)
	}

	stored, _ := taskRepo.GetByID(context.Background(), task.ID)
	if stored.Enabled {
		t.Fatal("trigger advance happens before execution, task must be disabled")
	}
}

func TestPanickingTaskDoesNotAbortCycle(t *testing.T) {
	taskRepo := persistence.NewMemoryTaskRepository()
	execRepo := persistence.NewMemoryExecutionRepository()
	executor := &stubExecutor{}
	m := newTestManager(taskRepo, execRepo, executor)

	bad := createDue(t, taskRepo, entity.TriggerOnce, 0)
	good := createDue(t, taskRepo, entity.TriggerOnce, 0)
	executor.panicOn = bad.ID

	m.pollAndExecute()
	m.wg.Wait()

	if executor.runCount() != 2 {
		t.Fatalf("both tasks must run, runs=%d", executor.runCount())
	}

	badExecs, _ := execRepo.ListByTask(context.Background(), bad.ID, 10)
	if len(badExecs) != 1 || badExecs[0].Outcome != entity.ExecFailure ||
		!strings.Contains(badExecs[0].Summary, "panic") {
		t.Fatalf("panic must be recorded as failure, got %+v", badExecs)
	}
	goodExecs, _ := execRepo.ListByTask(context.Background(), good.ID, 10)
	if len(goodExecs) != 1 || goodExecs[0].Outcome != entity.ExecSuccess {
		t.Fatalf("sibling task must complete normally, got %+v", goodExecs)
	}
}

func TestConcurrentManagersFireTaskOnce(t *testing.T) {
	taskRepo := persistence.NewMemoryTaskRepository()
	execRepo := persistence.NewMemoryExecutionRepository()
	executor := &stubExecutor{}

	m1 := newTestManager(taskRepo, execRepo, executor)
	m2 := newTestManager(taskRepo, execRepo, executor)

	task := createDue(t, taskRepo, entity.TriggerOnce, 0)

	var wg sync.WaitGroup
	for _, m := range []*SchedulerManager{m1, m2} {
		wg.Add(1)
		go func(mgr *SchedulerManager) {
			defer wg.Done()
			mgr.pollAndExecute()
			mgr.wg.Wait()
		}(m)
	}
	wg.Wait()

	if executor.runCount() != 1 {
		t.Fatalf("two pollers must not double-fire one task, runs=%d", executor.runCount())
	}
	execs, _ := execRepo.ListByTask(context.Background(), task.ID, 10)
	if len(execs) != 1 {
		t.Fatalf("exactly one execution row expected, got %d", len(execs))
	}
}

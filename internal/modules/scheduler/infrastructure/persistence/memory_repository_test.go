package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"NotaLink/internal/modules/scheduler/domain/entity"
)

func dueTask(userID string, due time.Time) *entity.ScheduledTask {
	return &entity.ScheduledTask{
		UserID:      userID,
		Title:       "ping",
		TriggerType: entity.TriggerOnce,
		TriggerAt:   &due,
		ActionType:  entity.ActionSendMessage,
		Enabled:     true,
		NextRunAt:   due,
	}
}

func TestClaimDueSingleWinner(t *testing.T) {
	repo := NewMemoryTaskRepository()
	now := time.Now()
	task := dueTask("user-1", now.Add(-time.Second))
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			won, err := repo.ClaimDue(context.Background(), fmt.Sprintf("worker-%d", n), now, 10)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			mu.Lock()
			total += len(won)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if total != 1 {
		t.Fatalf("exactly one worker must win the claim, got %d wins", total)
	}
}

func TestClaimSkipsFutureAndDisabled(t *testing.T) {
	repo := NewMemoryTaskRepository()
	now := time.Now()

	future := dueTask("user-1", now.Add(time.Hour))
	if err := repo.Create(context.Background(), future); err != nil {
		t.Fatalf("create: %v", err)
	}
	disabled := dueTask("user-1", now.Add(-time.Minute))
	disabled.Enabled = false
	if err := repo.Create(context.Background(), disabled); err != nil {
		t.Fatalf("create: %v", err)
	}

	won, err := repo.ClaimDue(context.Background(), "worker-1", now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(won) != 0 {
		t.Fatalf("future and disabled tasks must not be claimed, got %d", len(won))
	}
}

func TestStaleClaimIsReclaimable(t *testing.T) {
	repo := NewMemoryTaskRepository()
	now := time.Now()
	task := dueTask("user-1", now.Add(-time.Minute))
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}

	if won, _ := repo.ClaimDue(context.Background(), "worker-1", now, 10); len(won) != 1 {
		t.Fatalf("first claim should win, got %d", len(won))
	}

	// 持有认领期间其他实例拿不到
	if won, _ := repo.ClaimDue(context.Background(), "worker-2", now, 10); len(won) != 0 {
		t.Fatalf("held claim must block others, got %d", len(won))
	}

	// 认领超时视为工作进程挂掉，可被接管
	later := now.Add(staleClaimAfter + time.Minute)
	won, err := repo.ClaimDue(context.Background(), "worker-2", later, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(won) != 1 {
		t.Fatalf("stale claim should be reclaimable, got %d", len(won))
	}
}

func TestReleaseWritesAdvanceAndClearsClaim(t *testing.T) {
	repo := NewMemoryTaskRepository()
	now := time.Now()
	task := dueTask("user-1", now.Add(-time.Minute))
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("create: %v", err)
	}

	won, _ := repo.ClaimDue(context.Background(), "worker-1", now, 10)
	if len(won) != 1 {
		t.Fatalf("claim should win, got %d", len(won))
	}

	claimed := won[0]
	ranAt := now
	claimed.LastRunAt = &ranAt
	claimed.Enabled = true
	claimed.NextRunAt = now.Add(time.Hour)
	if err := repo.Release(context.Background(), &claimed); err != nil {
		t.Fatalf("release: %v", err)
	}

	stored, err := repo.GetByID(context.Background(), claimed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ClaimOwner != "" || stored.ClaimedAt != nil {
		t.Fatalf("release must clear the claim, got %+v", stored)
	}
	if !stored.NextRunAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("release must persist the advanced next run, got %v", stored.NextRunAt)
	}

	// 推进后的任务在到期前不再被认领
	if won, _ := repo.ClaimDue(context.Background(), "worker-2", now, 10); len(won) != 0 {
		t.Fatalf("advanced task must not be claimable before due, got %d", len(won))
	}
}

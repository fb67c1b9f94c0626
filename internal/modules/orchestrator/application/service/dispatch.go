package service

import (
	"context"
	"sync"
)

// turnDispatcher 保证同一会话的消息按到达顺序串行处理，
// 不同会话互不影响地并行。每个非空队列由一个 goroutine 排空，
// 排空后队列即被回收，不长期占用资源。
type turnDispatcher struct {
	mu     sync.Mutex
	queues map[string]*sessionQueue
}

type sessionQueue struct {
	jobs     []*turnJob
	draining bool
}

type turnJob struct {
	run  func()
	done chan struct{}
}

func newTurnDispatcher() *turnDispatcher {
	return &turnDispatcher{queues: make(map[string]*sessionQueue)}
}

// Do 将 fn 排入会话队列并等待其执行完成。
// ctx 先行取消时返回 ctx 错误；fn 仍会按顺序执行，
// 因此 fn 自身必须感知同一个 ctx 并尽快退出。
func (d *turnDispatcher) Do(ctx context.Context, sessionID string, fn func()) error {
	job := &turnJob{run: fn, done: make(chan struct{})}
	d.enqueue(sessionID, job)
	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *turnDispatcher) enqueue(sessionID string, job *turnJob) {
	d.mu.Lock()
	q, ok := d.queues[sessionID]
	if !ok {
		q = &sessionQueue{}
		d.queues[sessionID] = q
	}
	q.jobs = append(q.jobs, job)
	if !q.draining {
		q.draining = true
		go d.drain(sessionID, q)
	}
	d.mu.Unlock()
}

func (d *turnDispatcher) drain(sessionID string, q *sessionQueue) {
	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			q.draining = false
			delete(d.queues, sessionID)
			d.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		d.mu.Unlock()

		job.run()
		close(job.done)
	}
}

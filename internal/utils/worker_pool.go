package utils

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped 协程池已关闭
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool 通用协程池
type WorkerPool struct {
	JobQueue  chan func()
	WorkerNum int
	wg        sync.WaitGroup
	quit      chan struct{}
	stopOnce  sync.Once
	log       *zap.Logger
}

// NewWorkerPool 创建一个新的协程池
func NewWorkerPool(workerNum, queueSize int, log *zap.Logger) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		JobQueue:  make(chan func(), queueSize),
		WorkerNum: workerNum,
		quit:      make(chan struct{}),
		log:       log,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start() {
	for i := range p.WorkerNum {
		p.wg.Go(func() {
			for {
				select {
				case job := <-p.JobQueue:
					p.run(i, job)
				case <-p.quit:
					return
				}
			}
		})
	}
	p.log.Info("worker pool started", zap.Int("workers", p.WorkerNum), zap.Int("queue", cap(p.JobQueue)))
}

// run 使用 recover 防止单个任务 panic 导致 worker 挂掉
func (p *WorkerPool) run(workerID int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker job panicked", zap.Int("worker", workerID), zap.Any("panic", r))
		}
	}()
	job()
}

// Submit 提交任务到协程池
// 如果队列已满，此方法会阻塞，直到有空位
func (p *WorkerPool) Submit(job func()) {
	p.JobQueue <- job
}

// SubmitContext 与 Submit 相同, 但在 ctx 结束或协程池关闭时放弃排队
func (p *WorkerPool) SubmitContext(ctx context.Context, job func()) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}
	select {
	case p.JobQueue <- job:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止协程池, 可重复调用
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}

package broker

import (
	"sync"

	"flow-node/internal/pipeline"
)

// BatchTracker 维护一个批次的聚合状态。批次内任何一笔提交最终失败，
// 整批即为 ERROR；全部成功且批次封口后为 COMPLETE。状态一经翻转不再回退，
// 也不提供单笔归因。
type BatchTracker struct {
	mu        sync.Mutex
	pending   int
	sealed    bool
	status    pipeline.BatchStatus
	onResolve func(pipeline.BatchStatus)
}

// NewBatchTracker 创建处于 NOT_STARTED 状态的批次追踪器。
func NewBatchTracker() *BatchTracker {
	return &BatchTracker{status: pipeline.BatchNotStarted}
}

// OnResolve 注册批次终态回调。
func (t *BatchTracker) OnResolve(fn func(pipeline.BatchStatus)) {
	t.mu.Lock()
	t.onResolve = fn
	t.mu.Unlock()
}

// Status 返回当前聚合状态。
func (t *BatchTracker) Status() pipeline.BatchStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Register 登记一笔在途提交。
func (t *BatchTracker) Register() {
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
}

// Seal 声明本批次不再有新的提交。零提交的封口批次直接视为完成。
func (t *BatchTracker) Seal() {
	t.mu.Lock()
	t.sealed = true
	fn, status := t.maybeCompleteLocked()
	t.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}

// Done 上报一笔提交的终态结果。
func (t *BatchTracker) Done(err error) {
	t.mu.Lock()
	if t.pending > 0 {
		t.pending--
	}

	var fn func(pipeline.BatchStatus)
	var status pipeline.BatchStatus

	if err != nil {
		if t.status == pipeline.BatchNotStarted {
			t.status = pipeline.BatchError
			fn, status = t.onResolve, t.status
		}
	} else {
		fn, status = t.maybeCompleteLocked()
	}
	t.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}

func (t *BatchTracker) maybeCompleteLocked() (func(pipeline.BatchStatus), pipeline.BatchStatus) {
	if !t.sealed || t.pending != 0 || t.status != pipeline.BatchNotStarted {
		return nil, t.status
	}
	t.status = pipeline.BatchComplete
	return t.onResolve, t.status
}

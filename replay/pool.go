package replay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"scorched/domain"
)

var (
	// ErrPoolClosed は停止済みのプールへの問い合わせで返されます。
	ErrPoolClosed = errors.New("replay: interpolation pool is closed")
	// ErrQueryTimeout はワーカーの応答を待ちきれなかった場合に返されます。
	// 呼び出し側は直前の位置を保持して継続する回復可能な失敗として扱います。
	ErrQueryTimeout = errors.New("replay: interpolation query timed out")
)

type poolJob struct {
	id   uint64
	traj *Trajectory
	time float64
}

type poolResult struct {
	id       uint64
	position domain.Vec3
}

// Pool は補間クエリを固定数のワーカーへラウンドロビンで分配します。
// 各クエリは呼び出し側が持つ相関IDで完了と突き合わされるため、
// ワーカーの完了順序が前後しても正しい呼び出し元へ届きます。
// ジョブ間に共有可変状態はなく、pendingテーブルの管理だけが同期対象です。
type Pool struct {
	workers []chan poolJob
	next    atomic.Uint64 // ラウンドロビン位置
	seq     atomic.Uint64 // 相関ID採番
	timeout time.Duration

	mu      sync.Mutex
	pending map[uint64]chan poolResult

	closed atomic.Bool
}

// NewPool は指定ワーカー数のプールを生成します。Runを呼ぶまでワーカーは動きません。
func NewPool(size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	workers := make([]chan poolJob, size)
	for i := range workers {
		workers[i] = make(chan poolJob, 64)
	}
	return &Pool{
		workers: workers,
		timeout: timeout,
		pending: make(map[uint64]chan poolResult),
	}
}

// Run は全ワーカーを起動します。ctxのキャンセルで停止します。
func (p *Pool) Run(ctx context.Context) {
	for i := range p.workers {
		go p.workerLoop(ctx, p.workers[i])
	}
	go func() {
		<-ctx.Done()
		p.closed.Store(true)
	}()
}

func (p *Pool) workerLoop(ctx context.Context, jobs <-chan poolJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jobs:
			pos := PositionAt(job.traj, job.time)
			p.deliver(poolResult{id: job.id, position: pos})
		}
	}
}

// PositionAt は補間クエリを1ワーカーへ投げ、相関IDで応答を待ちます。
// タイムアウト時もpendingエントリは必ず除去され、テーブルは無限に成長しません。
func (p *Pool) PositionAt(ctx context.Context, traj *Trajectory, timeMs float64) (domain.Vec3, error) {
	if p.closed.Load() {
		return domain.Vec3{}, ErrPoolClosed
	}

	id := p.seq.Add(1)
	ch := make(chan poolResult, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()

	worker := p.workers[p.next.Add(1)%uint64(len(p.workers))]
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case worker <- poolJob{id: id, traj: traj, time: timeMs}:
	case <-timer.C:
		p.remove(id)
		return domain.Vec3{}, ErrQueryTimeout
	case <-ctx.Done():
		p.remove(id)
		return domain.Vec3{}, ctx.Err()
	}

	select {
	case res := <-ch:
		p.remove(id)
		return res.position, nil
	case <-timer.C:
		p.remove(id)
		return domain.Vec3{}, ErrQueryTimeout
	case <-ctx.Done():
		p.remove(id)
		return domain.Vec3{}, ctx.Err()
	}
}

// deliver は完了をpending中の呼び出し元へ相関IDで届けます。
// 既にタイムアウトで除去されていれば捨てられます。
func (p *Pool) deliver(res poolResult) {
	p.mu.Lock()
	ch, ok := p.pending[res.id]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- res:
	default:
	}
}

func (p *Pool) remove(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// PendingCount は未完了エントリ数を返します。リーク検査用です。
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

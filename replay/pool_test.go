package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"scorched/domain"
)

func constTrajectory(x float64) *Trajectory {
	return &Trajectory{
		Points:    []Point{{Time: 0, Position: domain.Vec3{X: x}}},
		impactIdx: -1,
	}
}

func TestPoolCorrelatesConcurrentQueries(t *testing.T) {
	pool := NewPool(4, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Run(ctx)

	// 多数のgoroutineが別々の軌道を問い合わせ、各自の結果が
	// 自分の軌道の位置と一致することを確認する。完了順が
	// 前後しても相関IDで正しい呼び出し元に届く。
	const queries = 200
	var wg sync.WaitGroup
	errs := make(chan error, queries)

	for i := 0; i < queries; i++ {
		wg.Add(1)
		go func(x float64) {
			defer wg.Done()
			pos, err := pool.PositionAt(ctx, constTrajectory(x), 0)
			if err != nil {
				errs <- err
				return
			}
			if pos.X != x {
				t.Errorf("query for X=%f got %f", x, pos.X)
			}
		}(float64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("query failed: %v", err)
	}

	// 全クエリ完了後にpendingテーブルは空
	if n := pool.PendingCount(); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
}

func TestPoolTimeoutRemovesPending(t *testing.T) {
	// ワーカーを起動しないプールへの問い合わせはタイムアウトする
	pool := NewPool(1, 50*time.Millisecond)

	// ワーカーのバッファを埋めて送信もブロックさせる
	for i := 0; i < 64; i++ {
		pool.workers[0] <- poolJob{}
	}

	_, err := pool.PositionAt(context.Background(), constTrajectory(1), 0)
	if err != ErrQueryTimeout {
		t.Fatalf("expected ErrQueryTimeout, got %v", err)
	}
	// タイムアウトでもpendingエントリは残らない
	if n := pool.PendingCount(); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
}

func TestPoolClosedAfterContextCancel(t *testing.T) {
	pool := NewPool(2, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Run(ctx)
	cancel()

	// closedフラグの反映を待つ
	deadline := time.After(time.Second)
	for !pool.closed.Load() {
		select {
		case <-deadline:
			t.Fatal("pool did not close after context cancel")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := pool.PositionAt(context.Background(), constTrajectory(1), 0); err != ErrPoolClosed {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPoolCanceledCallerContext(t *testing.T) {
	pool := NewPool(1, time.Minute)
	// ワーカー未起動かつ呼び出し側ctxキャンセル済み
	for i := 0; i < 64; i++ {
		pool.workers[0] <- poolJob{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.PositionAt(ctx, constTrajectory(1), 0)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := pool.PendingCount(); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
}

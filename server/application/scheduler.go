package application

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"scorched/timeline"
)

// 範囲ダメージの線形減衰率。縁では基礎ダメージの50%になる。
const damageFalloff = 0.5

// aoeDamage は距離減衰後の適用ダメージを返します。
// 半径の外（縁を含む）では0で、距離に対して単調非増加です。
func aoeDamage(base, dist, radius float64) int {
	if base <= 0 || radius <= 0 || dist >= radius {
		return 0
	}
	if dist < 0 {
		dist = 0
	}
	return int(math.Round(base * (1 - damageFalloff*dist/radius)))
}

// TimelineScheduler はタイムラインの論理時刻に合わせて副作用
// （範囲ダメージ適用・クレーター生成・撃破通知）を実行します。
// イベントごとの独立タイマーではなく、時刻順キューを1本のgoroutineが歩く
// 方式のため、マッチ破棄時にCloseで全予約をまとめてキャンセルできます。
type TimelineScheduler struct {
	field *Field

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTimelineScheduler(field *Field) *TimelineScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimelineScheduler{
		field:  field,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule は受領時点を開始時刻としてタイムラインを予約します。
// タイムラインはシミュレーション完了直後に無視できる遅延で届く前提です。
// 送達遅延を補正したい呼び出し側はScheduleAtで開始時刻を明示してください。
func (s *TimelineScheduler) Schedule(events []timeline.Event) {
	s.ScheduleAt(events, time.Now())
}

// ScheduleAt はstartを0ms時点としてタイムラインを予約します。
func (s *TimelineScheduler) ScheduleAt(events []timeline.Event, start time.Time) {
	queue := make([]timeline.Event, len(events))
	copy(queue, events)
	timeline.SortByTime(queue)

	s.wg.Add(1)
	go s.walk(queue, start)
}

// Close は予約済みの全タイムラインをキャンセルし、処理中のものを待ちます。
func (s *TimelineScheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *TimelineScheduler) walk(queue []timeline.Event, start time.Time) {
	defer s.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for _, ev := range queue {
		due := start.Add(time.Duration(ev.Time * float64(time.Millisecond)))
		if delay := time.Until(due); delay > 0 {
			timer.Reset(delay)
			select {
			case <-s.ctx.Done():
				return
			case <-timer.C:
			}
		}
		s.ProcessEvent(s.ctx, ev)
	}
}

// ProcessEvent は1イベント分の副作用を適用します。
// 対象はImpactとBounceのみで、SpawnとMoveは再生側だけが消費します。
func (s *TimelineScheduler) ProcessEvent(ctx context.Context, ev timeline.Event) {
	switch ev.Kind {
	case timeline.KindImpact, timeline.KindBounce:
	default:
		return
	}

	s.applyAreaDamage(ctx, ev)
	// ダメージ適用後にクレーターを彫り、全戦車を地形に合わせ直す
	s.field.Crater(ev.Position, ev.CraterSize, ev.CraterSize*0.5)
}

// applyAreaDamage は生存中の全戦車へ水平距離ベースの減衰ダメージを適用します。
// 0ダメージは適用自体をスキップします。
func (s *TimelineScheduler) applyAreaDamage(ctx context.Context, ev timeline.Event) {
	for _, tank := range s.field.Tanks() {
		if !tank.IsAlive() {
			continue
		}
		dist := tank.Position.DistanceXZ(ev.Position)
		damage := aoeDamage(ev.Damage, dist, ev.AoERadius)
		if damage == 0 {
			continue
		}
		result, ok := s.field.ApplyDamage(ctx, tank.SessionID, damage)
		if !ok {
			continue
		}
		slog.DebugContext(ctx, "area damage applied",
			"sessionID", tank.SessionID,
			"kind", ev.Kind.String(),
			"damage", result.Applied,
			"remaining", result.Remaining,
		)
	}
}

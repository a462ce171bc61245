package replay

import (
	"context"
	"log/slog"

	"scorched/domain"
	"scorched/timeline"
)

// Projectile は再生側での発射体ビジュアルオブジェクトです。
// 軌道を所有し、破棄されると軌道も破棄されます。
type Projectile struct {
	ID         timeline.ProjectileID
	Style      uint8
	Scale      float64
	Position   domain.Vec3
	Trajectory *Trajectory
}

// ExplosionFunc は着弾時の演出フックです。
type ExplosionFunc func(impact timeline.Event)

// Sequencer はタイムラインを発射体ごとにグループ化し、再生クロックに沿って
// イベントを消化しながら各発射体の位置を補間エンジンで更新します。
// 単一の論理スレッド（フレームごとのAdvance呼び出し）から操作される前提で、
// 複数goroutineからの同時変更には対応しません。
type Sequencer struct {
	pool *Pool

	queue   []timeline.Event // 時刻順の全イベント
	cursor  int
	buckets map[timeline.ProjectileID][]timeline.Event

	actives  map[timeline.ProjectileID]*Projectile
	playback float64 // 再生クロック ms

	onExplosion ExplosionFunc
}

func NewSequencer(pool *Pool) *Sequencer {
	return &Sequencer{
		pool:    pool,
		buckets: make(map[timeline.ProjectileID][]timeline.Event),
		actives: make(map[timeline.ProjectileID]*Projectile),
	}
}

// OnExplosion は着弾演出フックを設定します。
func (s *Sequencer) OnExplosion(fn ExplosionFunc) {
	s.onExplosion = fn
}

// LoadTimeline はグループ化をリセットし、イベントを発射体ごとにバケツ詰めして
// 再生クロックを0から開始します。受信順序は信用せず、ここで時刻順に並べ直します。
func (s *Sequencer) LoadTimeline(events []timeline.Event) {
	s.queue = make([]timeline.Event, len(events))
	copy(s.queue, events)
	timeline.SortByTime(s.queue)

	s.buckets = timeline.GroupByProjectile(s.queue)
	s.actives = make(map[timeline.ProjectileID]*Projectile)
	s.cursor = 0
	s.playback = 0
}

// Advance は再生クロックをelapsedMsだけ進め、時刻が過ぎたイベントを消化し、
// アクティブな発射体の位置を1回ずつ補間エンジンで更新します。
func (s *Sequencer) Advance(ctx context.Context, elapsedMs float64) {
	s.playback += elapsedMs

	for s.cursor < len(s.queue) && s.queue[s.cursor].Time <= s.playback {
		s.dispatch(ctx, s.queue[s.cursor])
		s.cursor++
	}

	for _, p := range s.actives {
		pos, err := s.pool.PositionAt(ctx, p.Trajectory, s.playback)
		if err != nil {
			// 回復可能: 直前の位置を保持して再生を続ける
			slog.WarnContext(ctx, "interpolation query failed, keeping last position",
				"projectileID", p.ID, "err", err)
			continue
		}
		p.Position = pos
	}
}

func (s *Sequencer) dispatch(ctx context.Context, ev timeline.Event) {
	switch ev.Kind {
	case timeline.KindSpawn:
		s.handleSpawn(ctx, ev)
	case timeline.KindImpact:
		s.handleImpact(ctx, ev)
	case timeline.KindMove, timeline.KindBounce:
		// 位置サンプルは軌道構築時にバケツから取り込み済み。
		// Spawn未観測の発射体のイベントはここでは無視し、Spawn到着時にまとめて使う。
	default:
		slog.WarnContext(ctx, "unknown timeline event kind", "kind", ev.Kind)
	}
}

// handleSpawn はビジュアルオブジェクトと完全な軌道を一度に構築します。
// 他のイベントより遅れてSpawnが処理された場合でも、バッファ済みのMove・Impactを
// 含む軌道が即座に組み上がるため、発射体は正しい補間位置へ直接置かれます。
func (s *Sequencer) handleSpawn(ctx context.Context, ev timeline.Event) {
	bucket, ok := s.buckets[ev.Projectile]
	if !ok {
		slog.WarnContext(ctx, "spawn without event bucket, discarding", "projectileID", ev.Projectile)
		return
	}
	traj := BuildTrajectory(bucket)
	if traj == nil {
		slog.WarnContext(ctx, "spawn with empty trajectory, discarding", "projectileID", ev.Projectile)
		return
	}
	s.actives[ev.Projectile] = &Projectile{
		ID:         ev.Projectile,
		Style:      ev.Style,
		Scale:      ev.Scale,
		Position:   ev.Position,
		Trajectory: traj,
	}
}

// handleImpact は着弾演出を起こし、発射体のビジュアルを破棄します。
// 軌道データのない発射体への着弾は記録して捨て、位置を捏造しません。
func (s *Sequencer) handleImpact(ctx context.Context, ev timeline.Event) {
	p, ok := s.actives[ev.Projectile]
	if !ok {
		slog.WarnContext(ctx, "impact for unknown projectile, discarding", "projectileID", ev.Projectile)
		return
	}
	p.Position = ev.Position
	if s.onExplosion != nil {
		s.onExplosion(ev)
	}
	delete(s.actives, ev.Projectile)
}

// Actives は現在アクティブな発射体の一覧を返します。
func (s *Sequencer) Actives() []*Projectile {
	out := make([]*Projectile, 0, len(s.actives))
	for _, p := range s.actives {
		out = append(out, p)
	}
	return out
}

// PlaybackTime は現在の再生クロック（ms）を返します。
func (s *Sequencer) PlaybackTime() float64 {
	return s.playback
}

// Done は全イベントを消化しアクティブな発射体が残っていないかを返します。
func (s *Sequencer) Done() bool {
	return s.cursor >= len(s.queue) && len(s.actives) == 0
}

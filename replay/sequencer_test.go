package replay

import (
	"context"
	"math"
	"testing"
	"time"

	"scorched/domain"
	"scorched/timeline"
)

func runningPool(t *testing.T) *Pool {
	t.Helper()
	pool := NewPool(2, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	pool.Run(ctx)
	return pool
}

func sampleTimeline() (timeline.ProjectileID, []timeline.Event) {
	id := timeline.NewProjectileID()
	return id, []timeline.Event{
		{Kind: timeline.KindSpawn, Time: 0, Projectile: id, Position: domain.Vec3{X: 0}, Style: 2, Scale: 1.5},
		{Kind: timeline.KindMove, Time: 25, Projectile: id, Position: domain.Vec3{X: 25}},
		{Kind: timeline.KindMove, Time: 50, Projectile: id, Position: domain.Vec3{X: 50}},
		{Kind: timeline.KindImpact, Time: 100, Projectile: id, Position: domain.Vec3{X: 100}, Damage: 40},
	}
}

func TestSequencerSpawnActivatesWithFullTrajectory(t *testing.T) {
	seq := NewSequencer(runningPool(t))
	_, events := sampleTimeline()
	seq.LoadTimeline(events)

	seq.Advance(context.Background(), 10)

	actives := seq.Actives()
	if len(actives) != 1 {
		t.Fatalf("active count = %d, want 1", len(actives))
	}
	p := actives[0]
	if p.Style != 2 || p.Scale != 1.5 {
		t.Errorf("style/scale = %d/%f, want 2/1.5", p.Style, p.Scale)
	}
	// Spawn処理時点でImpactまで含む完全な軌道が構築されている
	if p.Trajectory == nil || len(p.Trajectory.Points) != 4 {
		t.Fatalf("trajectory points = %v, want 4", p.Trajectory)
	}
	// 再生クロック10msの補間位置
	if math.Abs(p.Position.X-10) > 1e-9 {
		t.Errorf("position X = %f, want 10", p.Position.X)
	}
}

func TestSequencerImpactDisposes(t *testing.T) {
	seq := NewSequencer(runningPool(t))
	_, events := sampleTimeline()
	seq.LoadTimeline(events)

	var explosions []timeline.Event
	seq.OnExplosion(func(impact timeline.Event) {
		explosions = append(explosions, impact)
	})

	seq.Advance(context.Background(), 150)

	if len(explosions) != 1 {
		t.Fatalf("explosion count = %d, want 1", len(explosions))
	}
	if explosions[0].Position.X != 100 {
		t.Errorf("explosion position X = %f, want 100", explosions[0].Position.X)
	}
	if len(seq.Actives()) != 0 {
		t.Errorf("actives = %d, want 0 after impact", len(seq.Actives()))
	}
	if !seq.Done() {
		t.Error("sequencer should be done")
	}
}

func TestSequencerLateSpawnPlacesCorrectly(t *testing.T) {
	// 1回のAdvanceでSpawnと途中のMoveをまとめて消化しても、
	// 発射体は現在の再生クロックに対応する補間位置へ直接置かれる
	seq := NewSequencer(runningPool(t))
	_, events := sampleTimeline()
	seq.LoadTimeline(events)

	seq.Advance(context.Background(), 60)

	actives := seq.Actives()
	if len(actives) != 1 {
		t.Fatalf("active count = %d, want 1", len(actives))
	}
	// 50-100ms区間の60ms時点の補間位置（X=50とX=100の間）
	p := actives[0]
	if p.Position.X < 50 || p.Position.X > 100 {
		t.Errorf("position X = %f, want within (50, 100)", p.Position.X)
	}
}

func TestSequencerImpactForUnknownProjectileDiscarded(t *testing.T) {
	seq := NewSequencer(runningPool(t))

	// Spawnのない発射体のImpactだけを読み込む
	id := timeline.NewProjectileID()
	seq.LoadTimeline([]timeline.Event{
		{Kind: timeline.KindImpact, Time: 10, Projectile: id, Position: domain.Vec3{X: 1}},
	})

	fired := false
	seq.OnExplosion(func(timeline.Event) { fired = true })

	seq.Advance(context.Background(), 20)

	// 位置を捏造した演出は起こさず破棄される
	if fired {
		t.Error("explosion fired for unknown projectile")
	}
	if !seq.Done() {
		t.Error("sequencer should be done after discarding")
	}
}

func TestSequencerPlaybackClockAccumulates(t *testing.T) {
	seq := NewSequencer(runningPool(t))
	_, events := sampleTimeline()
	seq.LoadTimeline(events)

	seq.Advance(context.Background(), 10)
	seq.Advance(context.Background(), 15)
	if got := seq.PlaybackTime(); got != 25 {
		t.Errorf("playback time = %f, want 25", got)
	}

	// LoadTimelineでクロックとグループ化はリセットされる
	seq.LoadTimeline(events)
	if got := seq.PlaybackTime(); got != 0 {
		t.Errorf("playback time after reload = %f, want 0", got)
	}
	if len(seq.Actives()) != 0 {
		t.Error("actives should reset on reload")
	}
}

func TestSequencerSteadyTicksTrackWallClock(t *testing.T) {
	seq := NewSequencer(runningPool(t))
	id := timeline.NewProjectileID()
	seq.LoadTimeline([]timeline.Event{
		{Kind: timeline.KindSpawn, Time: 0, Projectile: id},
		{Kind: timeline.KindImpact, Time: 150, Projectile: id, Position: domain.Vec3{X: 150}},
	})

	fired := false
	seq.OnExplosion(func(timeline.Event) { fired = true })

	// 33ms周期のtickは毎回増分だけを渡す。3tick後の再生クロックは99msで
	// あって、経過時刻をそのまま足し込んだ和(33+66+99=198)ではない
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seq.Advance(ctx, 33)
	}
	if got := seq.PlaybackTime(); got != 99 {
		t.Fatalf("playback time = %f, want 99", got)
	}
	if fired {
		t.Error("impact at 150ms fired before playback reached it")
	}

	seq.Advance(ctx, 60)
	if !fired {
		t.Error("impact should fire once playback passes 150ms")
	}
}

func TestSequencerMultipleProjectiles(t *testing.T) {
	seq := NewSequencer(runningPool(t))
	_, first := sampleTimeline()
	secondID := timeline.NewProjectileID()
	second := []timeline.Event{
		{Kind: timeline.KindSpawn, Time: 40, Projectile: secondID, Position: domain.Vec3{Z: 1}},
		{Kind: timeline.KindImpact, Time: 200, Projectile: secondID, Position: domain.Vec3{Z: 9}},
	}
	seq.LoadTimeline(append(first, second...))

	seq.Advance(context.Background(), 120)

	// 1本目は着弾済み、2本目だけが残る
	actives := seq.Actives()
	if len(actives) != 1 {
		t.Fatalf("active count = %d, want 1", len(actives))
	}
	if actives[0].ID != secondID {
		t.Errorf("active ID = %v, want %v", actives[0].ID, secondID)
	}
	if seq.Done() {
		t.Error("sequencer should not be done yet")
	}

	seq.Advance(context.Background(), 100)
	if !seq.Done() {
		t.Error("sequencer should be done")
	}
}

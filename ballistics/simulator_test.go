package ballistics_test

import (
	"errors"
	"math"
	"testing"

	"scorched/ballistics"
	"scorched/domain"
	"scorched/terrain"
	"scorched/timeline"
)

// lobSpec は平坦地形に向けた山なり弾道の基本specを返す
func lobSpec() ballistics.ProjectileSpec {
	return ballistics.ProjectileSpec{
		Projectile: timeline.NewProjectileID(),
		Origin:     domain.Vec3{X: 100, Y: 0.5, Z: 100},
		Direction:  domain.Vec3{Y: 1},
		Power:      30,
		Damage:     40,
		AoERadius:  6,
		CraterSize: 3,
		Kinematics: ballistics.KinematicParams{Gravity: -20},
		Collides:   true,
	}
}

func TestSimulateEmitsSpawnFirstAndSingleImpact(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	events, err := sim.Simulate(lobSpec())
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	if events[0].Kind != timeline.KindSpawn || events[0].Time != 0 {
		t.Errorf("events[0] = %s at %f, want spawn at 0", events[0].Kind, events[0].Time)
	}

	impacts := 0
	for i, ev := range events {
		if ev.Kind == timeline.KindImpact {
			impacts++
		}
		if i > 0 && ev.Time < events[i-1].Time {
			t.Errorf("events not sorted at %d: %f < %f", i, ev.Time, events[i-1].Time)
		}
	}
	if impacts != 1 {
		t.Errorf("impact count = %d, want 1", impacts)
	}
	if events[len(events)-1].Kind != timeline.KindImpact {
		t.Errorf("last event = %s, want impact", events[len(events)-1].Kind)
	}
}

func TestSimulateFlightTimeMatchesAnalytic(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	events, err := sim.Simulate(lobSpec())
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	impact := events[len(events)-1]
	// 真上に初速30、重力20の弾は t = 2v/g = 3000ms 前後で戻る。
	// Euler積分の誤差とステップ離散化を許容する。
	want := 2 * 30.0 / 20.0 * 1000
	if math.Abs(impact.Time-want) > want*0.15 {
		t.Errorf("impact time = %f, want %f +-15%%", impact.Time, want)
	}
}

func TestSimulateDeterministic(t *testing.T) {
	spec := lobSpec()

	run := func() []timeline.Event {
		sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)
		events, err := sim.Simulate(spec)
		if err != nil {
			t.Fatalf("Simulate failed: %v", err)
		}
		return events
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("event count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Kind != second[i].Kind || first[i].Time != second[i].Time || first[i].Position != second[i].Position {
			t.Errorf("event[%d] differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSimulateExpiresInFlight(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	spec := lobSpec()
	spec.Collides = false // 衝突しないので時間上限まで飛び続ける

	events, err := sim.Simulate(spec)
	if !errors.Is(err, ballistics.ErrExpiredInFlight) {
		t.Fatalf("expected ErrExpiredInFlight, got %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expired projectile should still return its events")
	}
	for _, ev := range events {
		if ev.Kind == timeline.KindImpact {
			t.Error("expired projectile must not emit an impact")
		}
	}
}

func TestSimulateInvalidSpec(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	tests := []struct {
		name   string
		mutate func(*ballistics.ProjectileSpec)
	}{
		{"zero direction", func(s *ballistics.ProjectileSpec) { s.Direction = domain.Vec3{} }},
		{"zero power", func(s *ballistics.ProjectileSpec) { s.Power = 0 }},
		{"nan origin", func(s *ballistics.ProjectileSpec) { s.Origin.Y = math.NaN() }},
		{"inf direction", func(s *ballistics.ProjectileSpec) { s.Direction.X = math.Inf(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := lobSpec()
			tt.mutate(&spec)
			if _, err := sim.Simulate(spec); !errors.Is(err, ballistics.ErrInvalidSpec) {
				t.Errorf("expected ErrInvalidSpec, got %v", err)
			}
		})
	}
}

func TestSimulateCollisionGracePeriod(t *testing.T) {
	// 地形の中に埋まった状態で発射しても、猶予期間中は衝突しない
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 10), nil)

	spec := lobSpec()
	spec.Origin = domain.Vec3{X: 100, Y: 1, Z: 100}
	spec.Direction = domain.Vec3{X: 1}
	spec.Power = 1
	spec.Kinematics.Gravity = 0

	events, err := sim.Simulate(spec)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	impact := events[len(events)-1]
	if impact.Kind != timeline.KindImpact {
		t.Fatalf("last event = %s, want impact", impact.Kind)
	}
	if impact.Time <= 500 {
		t.Errorf("impact time = %f, want > 500ms grace", impact.Time)
	}
}

func TestSimulateMoveCadence(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	events, err := sim.Simulate(lobSpec())
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	var lastMove float64 = -1
	moves := 0
	for _, ev := range events {
		if ev.Kind != timeline.KindMove {
			continue
		}
		moves++
		if lastMove >= 0 && ev.Time-lastMove < 25 {
			t.Errorf("move interval = %f, want >= 25ms", ev.Time-lastMove)
		}
		lastMove = ev.Time
	}
	if moves == 0 {
		t.Error("expected move events during flight")
	}
}

func TestSimulateImpactSnapsToTerrain(t *testing.T) {
	flat := terrain.NewFlat(128, 128, 4, 2)
	sim := ballistics.NewSimulator(flat, nil)

	spec := lobSpec()
	spec.Origin = domain.Vec3{X: 100, Y: 2.5, Z: 100}

	events, err := sim.Simulate(spec)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	impact := events[len(events)-1]
	if impact.Kind != timeline.KindImpact {
		t.Fatalf("last event = %s, want impact", impact.Kind)
	}
	// 接触点は地形高さにスナップされる
	if h := flat.HeightAt(impact.Position.X, impact.Position.Z); math.Abs(impact.Position.Y-h) > 1e-9 {
		t.Errorf("impact Y = %f, want terrain height %f", impact.Position.Y, h)
	}
}

func TestSimulateBouncerBouncesThenImpacts(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	spec, err := ballistics.NewSpec(ballistics.WeaponBouncer, timeline.PlayerID{}, domain.Vec3{X: 100, Y: 2, Z: 100}, domain.Vec3{X: 0.5, Y: 1, Z: 0}, 20)
	if err != nil {
		t.Fatalf("NewSpec failed: %v", err)
	}

	events, err := sim.Simulate(spec)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	bounces := 0
	var lastCount uint8
	for _, ev := range events {
		if ev.Kind != timeline.KindBounce {
			continue
		}
		bounces++
		if ev.BounceCount <= lastCount {
			t.Errorf("bounce count not increasing: %d after %d", ev.BounceCount, lastCount)
		}
		lastCount = ev.BounceCount
	}
	if bounces == 0 || bounces > 3 {
		t.Errorf("bounce count = %d, want 1..3", bounces)
	}
	if events[len(events)-1].Kind != timeline.KindImpact {
		t.Errorf("last event = %s, want impact", events[len(events)-1].Kind)
	}
}

func TestSimulateSalvoMergesSorted(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	a := lobSpec()
	b := lobSpec()
	b.Power = 20 // 先に落ちる

	events, err := sim.SimulateSalvo([]ballistics.ProjectileSpec{a, b})
	if err != nil {
		t.Fatalf("SimulateSalvo failed: %v", err)
	}

	impacts := 0
	for i, ev := range events {
		if ev.Kind == timeline.KindImpact {
			impacts++
		}
		if i > 0 && ev.Time < events[i-1].Time {
			t.Errorf("merged timeline not sorted at %d", i)
		}
	}
	if impacts != 2 {
		t.Errorf("impact count = %d, want 2", impacts)
	}
}

func TestSimulateAssignsProjectileID(t *testing.T) {
	sim := ballistics.NewSimulator(terrain.NewFlat(128, 128, 4, 0), nil)

	spec := lobSpec()
	spec.Projectile = timeline.ProjectileID{}

	events, err := sim.Simulate(spec)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if events[0].Projectile.IsEmpty() {
		t.Error("projectile ID should be auto-assigned")
	}
}

package ballistics

import (
	"errors"
	"math"

	"scorched/domain"
	"scorched/timeline"
	"scorched/utils"
)

const (
	// シミュレーション時間の上限。これを超えた発射体は飛行中に消滅したとみなす。
	simTimeCapMs = 10000

	// 発射直後は衝突判定をスキップする（砲身・自機との即時衝突を避ける）
	collisionGraceMs = 500

	// Moveイベントの発行間隔（実時間）
	moveIntervalMs = 25

	// 法線推定の中心差分幅
	normalSampleDist = 1.0

	// バウンス後に接触点から浮かせる量。即時再衝突を避ける。
	bounceLift = 0.25
)

var (
	// ErrExpiredInFlight は衝突しないまま時間上限に達した場合に返されます。
	// Impactイベントは発行されません。致命的エラーではなく報告用です。
	ErrExpiredInFlight = errors.New("ballistics: projectile expired in flight without impact")

	// ErrInvalidSpec は発射方向や初速が解釈できない場合に返されます。
	ErrInvalidSpec = errors.New("ballistics: invalid projectile spec")
)

// ImpactFunc は着弾発生を武器種別によらず通知する汎用コールバックです。
type ImpactFunc func(impact timeline.Event)

// Simulator は1発射体の弾道を事前計算し、タイムラインイベント列として出力します。
// 乱数・実時刻を参照しないため、同一のspecと地形に対して常に同一の列を返します。
type Simulator struct {
	terrain  Terrain
	weapons  *WeaponRegistry
	onImpact ImpactFunc
}

// NewSimulator はSimulatorを生成します。weaponsはnilでもよく、その場合
// 武器固有の二次効果フックは常にスキップされます。
func NewSimulator(terrain Terrain, weapons *WeaponRegistry) *Simulator {
	return &Simulator{
		terrain: terrain,
		weapons: weapons,
	}
}

// OnImpact は着弾の汎用コールバックを設定します。
func (s *Simulator) OnImpact(fn ImpactFunc) {
	s.onImpact = fn
}

// SimulateSalvo は一斉射撃の各発射体を独立にシミュレートし、
// 全イベントを時刻順にマージした単一のタイムラインを返します。
func (s *Simulator) SimulateSalvo(specs []ProjectileSpec) ([]timeline.Event, error) {
	var all []timeline.Event
	var errs []error
	for i := range specs {
		events, err := s.Simulate(specs[i])
		if err != nil && !errors.Is(err, ErrExpiredInFlight) {
			errs = append(errs, err)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
		all = append(all, events...)
	}
	timeline.SortByTime(all)
	return all, errors.Join(errs...)
}

// Simulate は1発射体の全飛行を単一パスで計算し、時刻順のイベント列を返します。
// 衝突せずに時間上限へ達した場合、それまでのイベント列とErrExpiredInFlightを返します。
func (s *Simulator) Simulate(spec ProjectileSpec) ([]timeline.Event, error) {
	spec = spec.withDefaults()
	if !utils.FiniteVec(spec.Origin) || !utils.FiniteVec(spec.Direction) {
		return nil, ErrInvalidSpec
	}
	dir := spec.Direction.Normalize()
	if dir == (domain.Vec3{}) || spec.Power <= 0 {
		return nil, ErrInvalidSpec
	}
	if spec.Projectile.IsEmpty() {
		spec.Projectile = timeline.NewProjectileID()
	}

	st := SimulationState{
		Position:  spec.Origin,
		Direction: dir,
		Speed:     spec.Power,
	}
	st.Velocity = dir.Scale(st.Speed)

	events := []timeline.Event{spawnEvent(spec)}
	lastMoveAt := 0.0  // 最後にMoveを発行した実時間
	lastEventTime := 0.0

	for st.SimTime < simTimeCapMs {
		factor := effectiveTimeFactor(spec.Kinematics, &st)
		baseStep := adaptiveBaseStep(spec.Stepping, st.Speed)
		simStep := baseStep / factor
		realStep := baseStep
		dt := simStep / 1000

		prev := st.Position
		s.integrate(spec, &st, dt)
		st.SimTime += simStep
		st.RealTime += realStep

		// イベント時刻は実時間をその時点の係数でスケールした値。
		// 係数が変動しても単調性は崩さない。
		eventTime := st.RealTime * factor
		if eventTime < lastEventTime {
			eventTime = lastEventTime
		}
		lastEventTime = eventTime

		if spec.Collides && st.RealTime > collisionGraceMs {
			if contact, hit := s.findCollision(prev, st.Position, spec.Stepping.CollisionRadius); hit {
				normal := s.surfaceNormal(contact)
				if st.BounceCount < spec.Bounce.Count {
					if ev, emit := s.applyBounce(spec, &st, contact, normal, eventTime); emit {
						events = append(events, ev)
					}
					continue
				}
				impact := impactEvent(spec, &st, contact, normal, eventTime)
				events = append(events, impact)
				events = s.dispatchImpact(spec, impact, events)
				timeline.SortByTime(events)
				return events, nil
			}
		}

		if st.RealTime-lastMoveAt >= moveIntervalMs {
			events = append(events, timeline.Event{
				Kind:       timeline.KindMove,
				Time:       eventTime,
				Projectile: spec.Projectile,
				Position:   st.Position,
			})
			lastMoveAt = st.RealTime
		}
	}
	return events, ErrExpiredInFlight
}

// integrate は1ステップのEuler積分を行います。高次の積分は使いません。
func (s *Simulator) integrate(spec ProjectileSpec, st *SimulationState, dt float64) {
	if st.Phase == PhasePostBounceGrace {
		st.Phase = PhaseNormal
	} else if !st.FixedBounceSpeed && spec.Kinematics.Acceleration > 0 && st.Speed < spec.Kinematics.MaxSpeed {
		st.Speed = math.Min(st.Speed+spec.Kinematics.Acceleration*dt, spec.Kinematics.MaxSpeed)
	}

	vel := st.Direction.Scale(st.Speed)
	vel.Y += spec.Kinematics.Gravity * dt
	st.Position = st.Position.Add(vel.Scale(dt))
	st.Velocity = vel
	st.Speed = vel.Length()
	if st.Speed > 0 {
		st.Direction = vel.Scale(1 / st.Speed)
	}
}

// effectiveTimeFactor は現在の実効タイムスケール係数を返します。
// 実時間に比例して変化し、バウンスごとに減衰し、[min,max]にクランプされます。
func effectiveTimeFactor(k KinematicParams, st *SimulationState) float64 {
	factor := k.TimeFactorInitial + k.TimeFactorRate*(st.RealTime/1000)
	if st.BounceCount > 0 {
		factor *= math.Pow(k.BounceSpeedMultiplier, float64(st.BounceCount))
	}
	if factor < k.TimeFactorMin {
		factor = k.TimeFactorMin
	}
	if factor > k.TimeFactorMax {
		factor = k.TimeFactorMax
	}
	return factor
}

// adaptiveBaseStep は1ステップの移動量がMaxMovementPerStepを超えないよう
// ステップ長（ms）を選びます。高速時のトンネリングを防ぎます。
func adaptiveBaseStep(p StepParams, speed float64) float64 {
	if speed <= 0 {
		return p.MaxStepMs
	}
	step := p.MaxMovementPerStep / speed * 1000
	if step < p.MinStepMs {
		return p.MinStepMs
	}
	if step > p.MaxStepMs {
		return p.MaxStepMs
	}
	return step
}

// findCollision は前位置から新位置への線分を地形に対してサンプリングし、
// 最初に地面以下となる点の接触位置を返します。短い線分は終点のみを判定します。
func (s *Simulator) findCollision(from, to domain.Vec3, radius float64) (domain.Vec3, bool) {
	seg := to.Sub(from)
	length := seg.Length()
	if length <= radius {
		if h := s.terrain.HeightAt(to.X, to.Z); to.Y <= h {
			return domain.Vec3{X: to.X, Y: h, Z: to.Z}, true
		}
		return domain.Vec3{}, false
	}

	steps := int(math.Ceil(length / radius))
	for i := 1; i <= steps; i++ {
		p := from.Add(seg.Scale(float64(i) / float64(steps)))
		if h := s.terrain.HeightAt(p.X, p.Z); p.Y <= h {
			return domain.Vec3{X: p.X, Y: h, Z: p.Z}, true
		}
	}
	return domain.Vec3{}, false
}

// surfaceNormal は±1ユニットの中心差分から接触面の法線を推定します。
// 地形はオーバーハングを持たない前提で、常に上向きに揃えます。
func (s *Simulator) surfaceNormal(at domain.Vec3) domain.Vec3 {
	dhx := s.terrain.HeightAt(at.X+normalSampleDist, at.Z) - s.terrain.HeightAt(at.X-normalSampleDist, at.Z)
	dhz := s.terrain.HeightAt(at.X, at.Z+normalSampleDist) - s.terrain.HeightAt(at.X, at.Z-normalSampleDist)

	tx := domain.Vec3{X: 2 * normalSampleDist, Y: dhx, Z: 0}
	tz := domain.Vec3{X: 0, Y: dhz, Z: 2 * normalSampleDist}
	n := tz.Cross(tx)
	if n.Y < 0 {
		n = n.Scale(-1)
	}
	return n.Normalize()
}

func spawnEvent(spec ProjectileSpec) timeline.Event {
	return timeline.Event{
		Kind:          timeline.KindSpawn,
		Time:          0,
		Projectile:    spec.Projectile,
		Player:        spec.Player,
		Position:      spec.Origin,
		Direction:     spec.Direction.Normalize(),
		Power:         spec.Power,
		Weapon:        spec.Weapon,
		Style:         spec.Style,
		Scale:         spec.Scale,
		ExplosionType: spec.ExplosionType,
		ExplosionSize: spec.ExplosionSize,
		IsFinal:       spec.IsFinal,
	}
}

package ballistics

import (
	"scorched/domain"
	"scorched/timeline"
)

// BounceOutcome はバウンス解決の結果です。
type BounceOutcome struct {
	Direction domain.Vec3
	Speed     float64
	Position  domain.Vec3
	Fixed     bool // Speedが固定値によるものか（比例減衰ではなく）
}

// ResolveBounce は入射方向を法線で反射し、バウンス後の方向・速度・位置を計算します。
// 反射方向のY成分には上向き補正を加えたうえで下限を保証し、再正規化します。
// これによりエネルギーの尽きたバウンスが地形を滑走せず弧を描きます。
func ResolveBounce(incoming domain.Vec3, speed float64, normal domain.Vec3, p BounceParams, contact domain.Vec3) BounceOutcome {
	in := incoming.Normalize()
	n := normal.Normalize()

	// R = V - 2(V・N)N
	r := in.Sub(n.Scale(2 * in.Dot(n)))
	r.Y += p.UpwardBias
	if r.Y < p.MinVertical {
		r.Y = p.MinVertical
	}
	r = r.Normalize()

	out := BounceOutcome{
		Direction: r,
		Position:  contact.Add(n.Scale(bounceLift)),
	}
	if p.UseFixedPower {
		out.Speed = p.FixedPower
		out.Fixed = true
	} else {
		out.Speed = speed * p.Bounciness
	}
	return out
}

// applyBounce は状態をバウンス後の値へ更新し、設定されていればBounceイベントを返します。
// 次ステップの加速スキップはPhasePostBounceGraceとして1回だけ消費されます。
func (s *Simulator) applyBounce(spec ProjectileSpec, st *SimulationState, contact, normal domain.Vec3, eventTime float64) (timeline.Event, bool) {
	incoming := st.Direction
	outcome := ResolveBounce(incoming, st.Speed, normal, spec.Bounce, contact)

	st.Position = outcome.Position
	st.Direction = outcome.Direction
	st.Speed = outcome.Speed
	st.Velocity = outcome.Direction.Scale(outcome.Speed)
	st.BounceCount++
	st.Phase = PhasePostBounceGrace
	if outcome.Fixed {
		st.FixedBounceSpeed = true
	}

	if !spec.Bounce.Explodes {
		return timeline.Event{}, false
	}
	return timeline.Event{
		Kind:          timeline.KindBounce,
		Time:          eventTime,
		Projectile:    spec.Projectile,
		Position:      contact,
		BounceCount:   uint8(st.BounceCount),
		Direction:     incoming,
		Outgoing:      outcome.Direction,
		Normal:        normal,
		ExplosionType: spec.ExplosionType,
		ExplosionSize: spec.ExplosionSize * 0.5,
		Damage:        spec.Bounce.Damage,
		CraterSize:    spec.Bounce.CraterSize,
		AoERadius:     spec.Bounce.AoERadius,
	}, true
}

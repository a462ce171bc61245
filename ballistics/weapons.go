package ballistics

import (
	"errors"
	"math"

	"scorched/domain"
	"scorched/timeline"
	"scorched/utils"
)

// 武器コード
const (
	WeaponStandard timeline.WeaponCode = 1
	WeaponHeavy    timeline.WeaponCode = 2
	WeaponBouncer  timeline.WeaponCode = 3
	WeaponCluster  timeline.WeaponCode = 4
)

var ErrUnknownWeapon = errors.New("ballistics: unknown weapon code")

// クラスター子弾の展開パラメータ
const (
	clusterChildCount = 5
	clusterChildPower = 18.0
	clusterFuseMs     = 40.0
)

// weaponTemplate は武器カタログの1エントリです。発射ごとのspecの雛形になります。
type weaponTemplate struct {
	style         uint8
	scale         float64
	explosionType uint8
	explosionSize float64
	craterSize    float64
	aoeRadius     float64
	damage        float64
	bounce        BounceParams
	kinematics    KinematicParams
	stepping      StepParams
}

var weaponCatalog = map[timeline.WeaponCode]weaponTemplate{
	WeaponStandard: {
		style:         1,
		scale:         1.0,
		explosionType: 1,
		explosionSize: 4.0,
		craterSize:    3.0,
		aoeRadius:     6.0,
		damage:        40,
		kinematics: KinematicParams{
			Gravity:           -20.0,
			TimeFactorInitial: 1, TimeFactorMin: 1, TimeFactorMax: 1,
			BounceSpeedMultiplier: 1,
		},
		stepping: StepParams{MinStepMs: 5, MaxStepMs: 50, MaxMovementPerStep: 2, CollisionRadius: 1},
	},
	WeaponHeavy: {
		style:         2,
		scale:         1.6,
		explosionType: 2,
		explosionSize: 7.0,
		craterSize:    5.0,
		aoeRadius:     10.0,
		damage:        70,
		kinematics: KinematicParams{
			Acceleration:      4.0,
			Gravity:           -20.0,
			MaxSpeed:          80.0,
			TimeFactorInitial: 1, TimeFactorMin: 0.6, TimeFactorMax: 1.4,
			TimeFactorRate:        0.05,
			BounceSpeedMultiplier: 1,
		},
		stepping: StepParams{MinStepMs: 5, MaxStepMs: 50, MaxMovementPerStep: 2, CollisionRadius: 1.2},
	},
	WeaponBouncer: {
		style:         3,
		scale:         0.8,
		explosionType: 1,
		explosionSize: 3.0,
		craterSize:    2.0,
		aoeRadius:     5.0,
		damage:        30,
		bounce: BounceParams{
			Count:         3,
			Bounciness:    0.65,
			UpwardBias:    0.15,
			MinVertical:   0.2,
			FixedPower:    18.0,
			UseFixedPower: true,
			Damage:        10,
			CraterSize:    1.0,
			AoERadius:     3.0,
			Explodes:      true,
		},
		kinematics: KinematicParams{
			Gravity:           -20.0,
			TimeFactorInitial: 1, TimeFactorMin: 1, TimeFactorMax: 1,
			BounceSpeedMultiplier: 0.9,
		},
		stepping: StepParams{MinStepMs: 5, MaxStepMs: 40, MaxMovementPerStep: 1.5, CollisionRadius: 0.8},
	},
	WeaponCluster: {
		style:         4,
		scale:         1.2,
		explosionType: 3,
		explosionSize: 5.0,
		craterSize:    3.0,
		aoeRadius:     7.0,
		damage:        35,
		kinematics: KinematicParams{
			Gravity:           -20.0,
			TimeFactorInitial: 1, TimeFactorMin: 1, TimeFactorMax: 1,
			BounceSpeedMultiplier: 1,
		},
		stepping: StepParams{MinStepMs: 5, MaxStepMs: 50, MaxMovementPerStep: 2, CollisionRadius: 1},
	},
}

// NewSpec は武器カタログから発射体specを組み立てます。
func NewSpec(code timeline.WeaponCode, player timeline.PlayerID, origin, direction domain.Vec3, power float64) (ProjectileSpec, error) {
	tmpl, ok := weaponCatalog[code]
	if !ok {
		return ProjectileSpec{}, ErrUnknownWeapon
	}
	if !utils.FiniteVec(origin) || !utils.FiniteVec(direction) || power <= 0 {
		return ProjectileSpec{}, ErrInvalidSpec
	}
	return ProjectileSpec{
		Player:        player,
		Origin:        origin,
		Direction:     direction,
		Power:         power,
		Weapon:        code,
		Style:         tmpl.style,
		Scale:         tmpl.scale,
		ExplosionType: tmpl.explosionType,
		ExplosionSize: tmpl.explosionSize,
		CraterSize:    tmpl.craterSize,
		AoERadius:     tmpl.aoeRadius,
		Damage:        tmpl.damage,
		IsFinal:       true,
		Bounce:        tmpl.bounce,
		Kinematics:    tmpl.kinematics,
		Stepping:      tmpl.stepping,
		Collides:      true,
	}, nil
}

// RegisterStandardWeapons は標準武器のハンドラを登録します。
// 現状ハンドラを持つのはクラスター弾のみで、他の武器は汎用の着弾処理だけで完結します。
func RegisterStandardWeapons(reg *WeaponRegistry) {
	reg.Register(WeaponCluster, clusterHandler)
}

// clusterHandler は着弾点から子弾を扇状に展開し、子弾のイベント列を
// 親の着弾時刻以降へずらして同じタイムラインに合成します。
// 方向は固定の扇なので、同一入力に対する出力は決定的です。
func clusterHandler(impact timeline.Event, events []timeline.Event, sim *Simulator) []timeline.Event {
	origin := impact.Position.Add(domain.Vec3{Y: 1.0})
	for i := 0; i < clusterChildCount; i++ {
		angle := 2 * math.Pi * float64(i) / clusterChildCount
		dir := domain.Vec3{
			X: 0.45 * math.Cos(angle),
			Y: 1.0,
			Z: 0.45 * math.Sin(angle),
		}
		child, err := NewSpec(WeaponStandard, impact.Player, origin, dir, clusterChildPower)
		if err != nil {
			continue
		}
		child.Scale = 0.5
		child.Damage = 15
		child.AoERadius = 4.0
		child.CraterSize = 1.5
		child.ExplosionSize = 2.0
		child.IsFinal = false

		childEvents, err := sim.Simulate(child)
		if err != nil && len(childEvents) == 0 {
			continue
		}
		for j := range childEvents {
			childEvents[j].Time += impact.Time + clusterFuseMs
		}
		events = append(events, childEvents...)
	}
	return events
}

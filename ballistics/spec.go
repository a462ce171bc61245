package ballistics

import (
	"scorched/domain"
	"scorched/timeline"
)

// Phase はバウンス直後の加速スキップを1回だけ消費するための状態です。
type Phase uint8

const (
	PhaseNormal Phase = iota
	PhasePostBounceGrace // 次ステップの加速をスキップ
)

// BounceParams はバウンス挙動の設定です。
type BounceParams struct {
	Count         int     // 着弾前に許容するバウンス回数
	Bounciness    float64 // 反発係数 [0,1]
	UpwardBias    float64 // 反射方向のY成分に加える上向き補正
	MinVertical   float64 // 正規化前に保証するY成分の下限
	FixedPower    float64 // バウンス後の固定速度（UseFixedPowerのとき有効）
	UseFixedPower bool
	Damage        float64 // Bounceイベントに載せる縮小ダメージ
	CraterSize    float64
	AoERadius     float64
	Explodes      bool // trueならBounceイベントを発行する
}

// KinematicParams は運動の調整値です。距離の単位はワールドユニット、時間は秒基準です。
type KinematicParams struct {
	Acceleration float64 // units/s^2 最大速度までの加速
	Gravity      float64 // units/s^2 垂直速度に加算（下向きは負）
	MaxSpeed     float64 // units/s

	// タイムスケール係数。物理積分時間とイベント時刻を意図的に乖離させ、
	// 軌道を変えずにスローモーション・早送り再生を可能にする。
	TimeFactorInitial     float64
	TimeFactorMin         float64
	TimeFactorMax         float64
	TimeFactorRate        float64 // 経過実時間1秒あたりの係数変化
	BounceSpeedMultiplier float64 // bounceCount乗で係数を減衰させる
}

// StepParams は適応ステップの調整値です。
type StepParams struct {
	MinStepMs          float64
	MaxStepMs          float64
	MaxMovementPerStep float64 // 1ステップで許す最大移動量（ユニット）
	CollisionRadius    float64 // 衝突サンプリングの分割幅
}

// ProjectileSpec は1発射体の不変入力です。シミュレーションはこの値を変更しません。
type ProjectileSpec struct {
	Projectile timeline.ProjectileID // 空ならシミュレーション時に採番
	Player     timeline.PlayerID

	Origin    domain.Vec3
	Direction domain.Vec3 // 正規化済みであることは要求しない
	Power     float64     // 初速 units/s

	Weapon timeline.WeaponCode
	Style  uint8
	Scale  float64

	ExplosionType uint8
	ExplosionSize float64
	CraterSize    float64
	AoERadius     float64
	Damage        float64
	IsFinal       bool

	Bounce     BounceParams
	Kinematics KinematicParams
	Stepping   StepParams

	Collides bool
}

// withDefaults はゼロ値の調整項目に既定値を補います。
func (p ProjectileSpec) withDefaults() ProjectileSpec {
	if p.Stepping.MinStepMs <= 0 {
		p.Stepping.MinStepMs = 5
	}
	if p.Stepping.MaxStepMs <= 0 {
		p.Stepping.MaxStepMs = 50
	}
	if p.Stepping.MaxMovementPerStep <= 0 {
		p.Stepping.MaxMovementPerStep = 2
	}
	if p.Stepping.CollisionRadius <= 0 {
		p.Stepping.CollisionRadius = 1
	}
	if p.Kinematics.TimeFactorInitial <= 0 {
		p.Kinematics.TimeFactorInitial = 1
	}
	if p.Kinematics.TimeFactorMin <= 0 {
		p.Kinematics.TimeFactorMin = 1
	}
	if p.Kinematics.TimeFactorMax <= 0 {
		p.Kinematics.TimeFactorMax = 1
	}
	if p.Kinematics.BounceSpeedMultiplier <= 0 {
		p.Kinematics.BounceSpeedMultiplier = 1
	}
	if p.Kinematics.MaxSpeed <= 0 {
		p.Kinematics.MaxSpeed = p.Power
	}
	return p
}

// SimulationState は1回のシミュレーション実行が占有する可変状態です。
// 実行間で共有されることはなく、salvoの並行シミュレーションでもエイリアスを持ちません。
type SimulationState struct {
	Position  domain.Vec3
	Velocity  domain.Vec3
	Direction domain.Vec3
	Speed     float64

	SimTime  float64 // 物理積分の経過 ms
	RealTime float64 // イベント時刻・ネットワークペーシングの経過 ms

	BounceCount      int
	Phase            Phase
	FixedBounceSpeed bool // 固定バウンス速度が適用されて以降は加速しない
}

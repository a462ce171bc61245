package timeline

import (
	"sort"

	"github.com/google/uuid"

	"scorched/domain"
)

// ProjectileID は発射体の識別子です。
type ProjectileID [16]byte

func NewProjectileID() ProjectileID {
	return ProjectileID(uuid.New())
}

func ProjectileIDFromBytes(b [16]byte) ProjectileID {
	return ProjectileID(b)
}

func (id ProjectileID) String() string {
	return uuid.UUID(id).String()
}

func (id ProjectileID) Bytes() [16]byte {
	return id
}

func (id ProjectileID) IsEmpty() bool {
	return id == ProjectileID{}
}

// PlayerID は発射したプレイヤーの識別子です。サーバー側ではセッションIDと同一です。
type PlayerID [16]byte

func PlayerIDFromBytes(b [16]byte) PlayerID {
	return PlayerID(b)
}

func (id PlayerID) String() string {
	return uuid.UUID(id).String()
}

func (id PlayerID) Bytes() [16]byte {
	return id
}

// WeaponCode は武器の種別コードです。具体的な武器定義はballisticsパッケージが持ちます。
type WeaponCode uint8

// Kind はタイムラインイベントの種別です。
type Kind uint8

const (
	KindSpawn  Kind = 1
	KindMove   Kind = 2
	KindBounce Kind = 3
	KindImpact Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "projectileSpawn"
	case KindMove:
		return "projectileMove"
	case KindBounce:
		return "projectileBounce"
	case KindImpact:
		return "projectileImpact"
	default:
		return "unknown"
	}
}

// Event はシミュレーターが出力する1イベントのフラットレコードです。
// Kindごとに有効なフィールドが異なります。Timeはそのタイムライン開始からの
// 経過ミリ秒で、同一発射体のイベントは時刻順に並びます。
type Event struct {
	Kind       Kind
	Time       float64 // ms
	Projectile ProjectileID

	// spawn
	Player PlayerID
	Power  float64
	Weapon WeaponCode
	Style  uint8
	Scale  float64

	// 位置・方向
	Position  domain.Vec3
	Direction domain.Vec3 // spawn: 発射方向 / bounce, impact: 入射方向
	Outgoing  domain.Vec3 // bounce: 反射方向
	Normal    domain.Vec3 // bounce, impact: 接触面法線

	// 効果
	ExplosionType uint8
	ExplosionSize float64
	CraterSize    float64
	AoERadius     float64
	Damage        float64
	BounceCount   uint8
	IsFinal       bool
}

// Terminal はその発射体の終端イベントかどうかを返します。
func (e Event) Terminal() bool {
	return e.Kind == KindImpact
}

// SortByTime はイベント列を時刻昇順に安定ソートします。
// 同時刻のイベントは元の順序（発射体ごとの生成順）を保ちます。
func SortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time < events[j].Time
	})
}

// GroupByProjectile はイベントを発射体ごとに分け、各バケツを時刻順にソートして返します。
func GroupByProjectile(events []Event) map[ProjectileID][]Event {
	buckets := make(map[ProjectileID][]Event)
	for _, ev := range events {
		buckets[ev.Projectile] = append(buckets[ev.Projectile], ev)
	}
	for id := range buckets {
		SortByTime(buckets[id])
	}
	return buckets
}

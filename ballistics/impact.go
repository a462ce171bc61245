package ballistics

import (
	"sync"

	"scorched/domain"
	"scorched/timeline"
)

// WeaponHandler は着弾時に武器固有の二次効果を合成するフックです。
// 受け取ったイベント列に追加イベント（クラスター子弾など）を連結して返せます。
// simを通じて子発射体のシミュレーションを起こすことができます。
type WeaponHandler func(impact timeline.Event, events []timeline.Event, sim *Simulator) []timeline.Event

// WeaponRegistry は武器コードごとのWeaponHandlerを保持します。
type WeaponRegistry struct {
	mu       sync.RWMutex
	handlers map[timeline.WeaponCode]WeaponHandler
}

func NewWeaponRegistry() *WeaponRegistry {
	return &WeaponRegistry{
		handlers: make(map[timeline.WeaponCode]WeaponHandler),
	}
}

// Register は武器コードにハンドラを登録します。同一コードへの再登録は上書きです。
func (r *WeaponRegistry) Register(code timeline.WeaponCode, handler WeaponHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[code] = handler
}

func (r *WeaponRegistry) lookup(code timeline.WeaponCode) (WeaponHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[code]
	return h, ok
}

// impactEvent は終端のImpactイベントを構築します。
func impactEvent(spec ProjectileSpec, st *SimulationState, contact, normal domain.Vec3, eventTime float64) timeline.Event {
	return timeline.Event{
		Kind:          timeline.KindImpact,
		Time:          eventTime,
		Projectile:    spec.Projectile,
		Player:        spec.Player,
		Position:      contact,
		Damage:        spec.Damage,
		AoERadius:     spec.AoERadius,
		CraterSize:    spec.CraterSize,
		ExplosionType: spec.ExplosionType,
		ExplosionSize: spec.ExplosionSize,
		BounceCount:   uint8(st.BounceCount),
		Direction:     st.Direction,
		Normal:        normal,
		IsFinal:       spec.IsFinal,
	}
}

// dispatchImpact は武器固有ハンドラと汎用コールバックへ着弾を通知します。
// 未登録の武器コードではハンドラだけがスキップされ、着弾自体の効果は変わりません。
func (s *Simulator) dispatchImpact(spec ProjectileSpec, impact timeline.Event, events []timeline.Event) []timeline.Event {
	if s.weapons != nil {
		if handler, ok := s.weapons.lookup(spec.Weapon); ok {
			events = handler(impact, events, s)
		}
	}
	if s.onImpact != nil {
		s.onImpact(impact)
	}
	return events
}

package application

import (
	"context"
	"log/slog"
	"math"
	"sync"

	core "scorched/domain"
	"scorched/server/domain"
	"scorched/terrain"
)

// Tank は戦場の戦闘ユニットです。観戦者セッション1つにつき1台が配置されます。
type Tank struct {
	SessionID domain.SessionID
	Position  core.Vec3
	HP        int
}

const tankMaxHP = 100

// IsAlive は戦車が生存しているかを返します。
func (t *Tank) IsAlive() bool {
	return t.HP > 0
}

// DamageResult はダメージ適用の結果です。
type DamageResult struct {
	Applied   int
	Remaining int
	Defeated  bool
}

// DefeatFunc は戦車が撃破されたときの通知フックです。
type DefeatFunc func(sessionID domain.SessionID)

// Field は地形と戦闘ユニットを管理します。
// ダメージ適用と地形変形は複数のタイムライン処理goroutineから同時に届くため、
// フィールドのロックで直列化します。近接した2つの範囲攻撃が減衰計算を
// 二重適用する競合はここで防ぎます。
type Field struct {
	mu       sync.Mutex
	terrain  *terrain.Heightfield
	tanks    map[domain.SessionID]*Tank
	onDefeat DefeatFunc
}

// NewField は指定された地形でフィールドを作成します。
func NewField(t *terrain.Heightfield) *Field {
	return &Field{
		terrain: t,
		tanks:   make(map[domain.SessionID]*Tank),
	}
}

// OnDefeat は撃破通知フックを設定します。
func (f *Field) OnDefeat(fn DefeatFunc) {
	f.onDefeat = fn
}

// Spawn はマップ中心周りの円周上に戦車を配置します。
// 配置位置は参加順で決まり、高さは地形に合わせます。
func (f *Field) Spawn(sessionID domain.SessionID) *Tank {
	f.mu.Lock()
	defer f.mu.Unlock()

	cx := f.terrain.WorldWidth() / 2
	cz := f.terrain.WorldDepth() / 2
	radius := math.Min(cx, cz) * 0.5
	angle := 2 * math.Pi * float64(len(f.tanks)) / 8

	x := cx + radius*math.Cos(angle)
	z := cz + radius*math.Sin(angle)
	tank := &Tank{
		SessionID: sessionID,
		Position:  core.Vec3{X: x, Y: f.terrain.HeightAt(x, z), Z: z},
		HP:        tankMaxHP,
	}
	f.tanks[sessionID] = tank
	return tank
}

// Remove は戦車をフィールドから削除します。
func (f *Field) Remove(sessionID domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tanks, sessionID)
}

// ApplyDamage は戦車にダメージを適用します。HPが0になったら撃破通知を行います。
// 対象が存在しない・既に撃破済みの場合はokがfalseです。
func (f *Field) ApplyDamage(ctx context.Context, sessionID domain.SessionID, amount int) (DamageResult, bool) {
	f.mu.Lock()
	tank, ok := f.tanks[sessionID]
	if !ok || !tank.IsAlive() || amount <= 0 {
		f.mu.Unlock()
		return DamageResult{}, false
	}

	if amount > tank.HP {
		amount = tank.HP
	}
	tank.HP -= amount
	result := DamageResult{
		Applied:   amount,
		Remaining: tank.HP,
		Defeated:  tank.HP == 0,
	}
	f.mu.Unlock()

	if result.Defeated {
		slog.InfoContext(ctx, "tank defeated", "sessionID", sessionID)
		if f.onDefeat != nil {
			f.onDefeat(sessionID)
		}
	}
	return result, true
}

// Alive は戦車が生存しているかを返します。
func (f *Field) Alive(sessionID domain.SessionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	tank, ok := f.tanks[sessionID]
	return ok && tank.IsAlive()
}

// Tanks は全戦車のスナップショットを返します。
func (f *Field) Tanks() []Tank {
	f.mu.Lock()
	defer f.mu.Unlock()
	tanks := make([]Tank, 0, len(f.tanks))
	for _, t := range f.tanks {
		tanks = append(tanks, *t)
	}
	return tanks
}

// GetTank は指定されたセッションIDの戦車のスナップショットを返します。
func (f *Field) GetTank(sessionID domain.SessionID) (Tank, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tank, ok := f.tanks[sessionID]
	if !ok {
		return Tank{}, false
	}
	return *tank, true
}

// Crater は着弾クレーターを地形に彫り、全戦車を変形後の地形へ settle します。
func (f *Field) Crater(center core.Vec3, radius, depth float64) {
	if radius <= 0 || depth <= 0 {
		return
	}
	f.terrain.Deform(center, radius, depth)
	f.Settle()
}

// Settle は全戦車のY座標を現在の地形高さに合わせます。
func (f *Field) Settle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tanks {
		t.Position.Y = f.terrain.HeightAt(t.Position.X, t.Position.Z)
	}
}

package application

import (
	"context"
	"math"
	"testing"

	"scorched/server/domain"
	"scorched/terrain"
)

func TestField_Spawn(t *testing.T) {
	hf := terrain.NewFlat(32, 32, 4, 5)
	f := NewField(hf)

	sessionID := domain.NewSessionID()
	tank := f.Spawn(sessionID)

	if tank.SessionID != sessionID {
		t.Errorf("SessionID = %s, want %s", tank.SessionID, sessionID)
	}
	if tank.HP != tankMaxHP {
		t.Errorf("HP = %d, want %d", tank.HP, tankMaxHP)
	}
	if !tank.IsAlive() {
		t.Error("tank should be alive")
	}
	// 高さは地形に合う
	if math.Abs(tank.Position.Y-5) > 1e-9 {
		t.Errorf("Position.Y = %f, want terrain height 5", tank.Position.Y)
	}
	if len(f.Tanks()) != 1 {
		t.Errorf("tank count = %d, want 1", len(f.Tanks()))
	}
}

func TestField_SpawnPositionsDiffer(t *testing.T) {
	f := NewField(terrain.NewFlat(32, 32, 4, 0))

	a := f.Spawn(domain.NewSessionID())
	b := f.Spawn(domain.NewSessionID())
	if a.Position == b.Position {
		t.Errorf("both tanks at %+v, want distinct spawn slots", a.Position)
	}
}

func TestField_Remove(t *testing.T) {
	f := NewField(terrain.NewFlat(32, 32, 4, 0))

	id1 := domain.NewSessionID()
	id2 := domain.NewSessionID()
	f.Spawn(id1)
	f.Spawn(id2)

	f.Remove(id1)

	if _, ok := f.GetTank(id1); ok {
		t.Error("tank 1 should be removed")
	}
	if _, ok := f.GetTank(id2); !ok {
		t.Error("tank 2 should exist")
	}
}

func TestField_ApplyDamage(t *testing.T) {
	f := NewField(terrain.NewFlat(32, 32, 4, 0))
	ctx := context.Background()

	sessionID := domain.NewSessionID()
	f.Spawn(sessionID)

	result, ok := f.ApplyDamage(ctx, sessionID, 30)
	if !ok {
		t.Fatal("ApplyDamage failed")
	}
	if result.Applied != 30 || result.Remaining != 70 || result.Defeated {
		t.Errorf("result = %+v, want applied 30, remaining 70", result)
	}

	// HPを超えるダメージはクランプされる
	result, ok = f.ApplyDamage(ctx, sessionID, 1000)
	if !ok {
		t.Fatal("ApplyDamage failed")
	}
	if result.Applied != 70 || result.Remaining != 0 || !result.Defeated {
		t.Errorf("result = %+v, want clamped 70 and defeated", result)
	}
	if f.Alive(sessionID) {
		t.Error("tank should be dead")
	}

	// 撃破済みへの追加ダメージは適用されない
	if _, ok := f.ApplyDamage(ctx, sessionID, 10); ok {
		t.Error("damage to dead tank should fail")
	}
}

func TestField_ApplyDamageUnknownOrInvalid(t *testing.T) {
	f := NewField(terrain.NewFlat(32, 32, 4, 0))
	ctx := context.Background()

	if _, ok := f.ApplyDamage(ctx, domain.NewSessionID(), 10); ok {
		t.Error("damage to unknown tank should fail")
	}

	sessionID := domain.NewSessionID()
	f.Spawn(sessionID)
	if _, ok := f.ApplyDamage(ctx, sessionID, 0); ok {
		t.Error("zero damage should not be applied")
	}
}

func TestField_OnDefeat(t *testing.T) {
	f := NewField(terrain.NewFlat(32, 32, 4, 0))
	ctx := context.Background()

	var defeated []domain.SessionID
	f.OnDefeat(func(sessionID domain.SessionID) {
		defeated = append(defeated, sessionID)
	})

	sessionID := domain.NewSessionID()
	f.Spawn(sessionID)
	f.ApplyDamage(ctx, sessionID, tankMaxHP)

	if len(defeated) != 1 || defeated[0] != sessionID {
		t.Errorf("defeated = %v, want [%s]", defeated, sessionID)
	}
}

func TestField_CraterSettlesTanks(t *testing.T) {
	hf := terrain.NewFlat(32, 32, 4, 10)
	f := NewField(hf)

	sessionID := domain.NewSessionID()
	tank := f.Spawn(sessionID)
	before := tank.Position.Y

	// 戦車の足元にクレーターを彫ると戦車は沈む
	f.Crater(tank.Position, 8, 3)

	after, _ := f.GetTank(sessionID)
	if after.Position.Y >= before {
		t.Errorf("tank Y = %f, want lower than %f after crater", after.Position.Y, before)
	}
	// 変形後の地形高さに一致する
	want := hf.HeightAt(after.Position.X, after.Position.Z)
	if math.Abs(after.Position.Y-want) > 1e-9 {
		t.Errorf("tank Y = %f, want terrain height %f", after.Position.Y, want)
	}
}

func TestField_CraterIgnoresInvalidArgs(t *testing.T) {
	hf := terrain.NewFlat(32, 32, 4, 10)
	f := NewField(hf)

	sessionID := domain.NewSessionID()
	tank := f.Spawn(sessionID)

	f.Crater(tank.Position, 0, 3)
	f.Crater(tank.Position, 5, 0)

	after, _ := f.GetTank(sessionID)
	if after.Position.Y != tank.Position.Y {
		t.Errorf("tank Y changed to %f, want unchanged", after.Position.Y)
	}
}

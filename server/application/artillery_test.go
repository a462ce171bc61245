package application

import (
	"context"
	"errors"
	"testing"

	"scorched/ballistics"
	core "scorched/domain"
	"scorched/server/domain"
	"scorched/terrain"
	"scorched/timeline"
)

func newTestApplication(t *testing.T) (*ArtilleryApplication, *Field) {
	t.Helper()
	hf := terrain.NewFlat(64, 64, 4, 0)
	field := NewField(hf)
	scheduler := NewTimelineScheduler(field)
	t.Cleanup(scheduler.Close)

	weapons := ballistics.NewWeaponRegistry()
	ballistics.RegisterStandardWeapons(weapons)
	sim := ballistics.NewSimulator(hf, weapons)

	return NewArtilleryApplication(sim, field, scheduler), field
}

func fireMessage(t *testing.T, sessionID domain.SessionID, shots ...domain.FireShot) []byte {
	t.Helper()
	payload := domain.FirePayload{Shots: shots}
	data, err := domain.EncodeMessage(sessionID, domain.DataTypeFire, 0, payload.Encode())
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	return data
}

func TestArtilleryFireProducesTimelineFrame(t *testing.T) {
	app, _ := newTestApplication(t)
	ctx := context.Background()
	sessionID := domain.NewSessionID()

	msg := fireMessage(t, sessionID, domain.FireShot{
		Weapon:    ballistics.WeaponStandard,
		Origin:    core.Vec3{X: 100, Y: 1, Z: 100},
		Direction: core.Vec3{Y: 1},
		Power:     30,
	})
	if err := app.HandleMessage(ctx, sessionID, msg); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	frames := app.Tick(ctx)
	if len(frames) != 1 {
		t.Fatalf("frame count = %d, want 1", len(frames))
	}

	// フレームはタイムライン配信メッセージとしてパースできる
	payloadHeader, err := domain.ParsePayloadHeader(frames[0][domain.HeaderSize:])
	if err != nil {
		t.Fatalf("ParsePayloadHeader failed: %v", err)
	}
	if payloadHeader.DataType != domain.DataTypeTimeline {
		t.Fatalf("DataType = %d, want timeline", payloadHeader.DataType)
	}

	events, err := timeline.ParseEvents(frames[0][domain.HeaderSize+domain.PayloadHeaderSize:])
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("timeline frame has no events")
	}
	if events[0].Kind != timeline.KindSpawn {
		t.Errorf("first event = %s, want spawn", events[0].Kind)
	}
	if events[len(events)-1].Kind != timeline.KindImpact {
		t.Errorf("last event = %s, want impact", events[len(events)-1].Kind)
	}

	// Tickはフレームを1回しか返さない
	if frames := app.Tick(ctx); frames != nil {
		t.Errorf("second Tick = %v, want nil", frames)
	}
}

func TestArtilleryFireInvalidShotsSkipped(t *testing.T) {
	app, _ := newTestApplication(t)
	ctx := context.Background()
	sessionID := domain.NewSessionID()

	// 不正な武器コードの弾は捨てられ、有効弾のみシミュレートされる
	msg := fireMessage(t, sessionID,
		domain.FireShot{Weapon: 200, Origin: core.Vec3{X: 100, Y: 1, Z: 100}, Direction: core.Vec3{Y: 1}, Power: 30},
		domain.FireShot{Weapon: ballistics.WeaponStandard, Origin: core.Vec3{X: 100, Y: 1, Z: 100}, Direction: core.Vec3{Y: 1}, Power: 30},
	)
	if err := app.HandleMessage(ctx, sessionID, msg); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	frames := app.Tick(ctx)
	if len(frames) != 1 {
		t.Fatalf("frame count = %d, want 1", len(frames))
	}

	events, err := timeline.ParseEvents(frames[0][domain.HeaderSize+domain.PayloadHeaderSize:])
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	spawns := 0
	for _, ev := range events {
		if ev.Kind == timeline.KindSpawn {
			spawns++
		}
	}
	if spawns != 1 {
		t.Errorf("spawn count = %d, want 1", spawns)
	}
}

func TestArtilleryFireAllInvalidProducesNothing(t *testing.T) {
	app, _ := newTestApplication(t)
	ctx := context.Background()
	sessionID := domain.NewSessionID()

	msg := fireMessage(t, sessionID, domain.FireShot{Weapon: 200, Direction: core.Vec3{Y: 1}, Power: 30})
	if err := app.HandleMessage(ctx, sessionID, msg); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if frames := app.Tick(ctx); frames != nil {
		t.Errorf("frames = %v, want nil", frames)
	}
}

func TestArtilleryRejectsHeaderLengthMismatch(t *testing.T) {
	app, _ := newTestApplication(t)
	ctx := context.Background()
	sessionID := domain.NewSessionID()

	msg := fireMessage(t, sessionID, domain.FireShot{
		Weapon:    ballistics.WeaponStandard,
		Origin:    core.Vec3{X: 100, Y: 1, Z: 100},
		Direction: core.Vec3{Y: 1},
		Power:     30,
	})
	// length欄(オフセット19..20)を実ペイロード長とずらす
	msg[19]++

	err := app.HandleMessage(ctx, sessionID, msg)
	if !errors.Is(err, domain.ErrHeaderLengthMismatch) {
		t.Fatalf("err = %v, want ErrHeaderLengthMismatch", err)
	}
	if frames := app.Tick(ctx); frames != nil {
		t.Errorf("frames = %v, want nil for rejected message", frames)
	}
}

func TestArtilleryControlJoinAndLeave(t *testing.T) {
	app, field := newTestApplication(t)
	ctx := context.Background()
	sessionID := domain.NewSessionID()

	join, err := domain.EncodeMessage(sessionID, domain.DataTypeControl, uint8(domain.ControlSubTypeJoin), nil)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	if err := app.HandleMessage(ctx, sessionID, join); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if _, ok := field.GetTank(sessionID); !ok {
		t.Fatal("tank not spawned on join")
	}

	leave, err := domain.EncodeMessage(sessionID, domain.DataTypeControl, uint8(domain.ControlSubTypeLeave), nil)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	if err := app.HandleMessage(ctx, sessionID, leave); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if _, ok := field.GetTank(sessionID); ok {
		t.Fatal("tank not removed on leave")
	}
}

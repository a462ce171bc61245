package application

import (
	"context"
	"errors"
	"log/slog"

	"scorched/ballistics"
	"scorched/server/domain"
	"scorched/timeline"
)

// ArtilleryApplication は砲撃戦マッチのゲームロジックです。
// 発射要求を受けると弾道全体をその場で事前計算し、完成したタイムラインを
// 観戦者へブロードキャストするとともに、権威側の副作用をスケジュールします。
// 以降このタイムラインについてフレーム同期は一切発生しません。
//
// HandleMessageとTickはマッチのtickループの単一goroutineからのみ呼ばれるため、
// pendingFramesへのアクセスに同期は不要です。
type ArtilleryApplication struct {
	sim       *ballistics.Simulator
	field     *Field
	scheduler *TimelineScheduler

	pendingFrames [][]byte
}

func NewArtilleryApplication(sim *ballistics.Simulator, field *Field, scheduler *TimelineScheduler) *ArtilleryApplication {
	return &ArtilleryApplication{
		sim:       sim,
		field:     field,
		scheduler: scheduler,
	}
}

var _ domain.Application = (*ArtilleryApplication)(nil)

func (app *ArtilleryApplication) HandleMessage(ctx context.Context, sessionID domain.SessionID, data []byte) error {
	header, err := domain.ParseHeader(data)
	if err != nil {
		return err
	}
	if int(header.Length) != len(data)-domain.HeaderSize {
		return domain.ErrHeaderLengthMismatch
	}

	payloadData := data[domain.HeaderSize:]
	payloadHeader, err := domain.ParsePayloadHeader(payloadData)
	if err != nil {
		return err
	}

	payload := payloadData[domain.PayloadHeaderSize:]
	switch payloadHeader.DataType {
	case domain.DataTypeFire:
		return app.handleFire(ctx, sessionID, payload)
	case domain.DataTypeControl:
		return app.handleControl(ctx, sessionID, domain.ControlSubType(payloadHeader.SubType))
	default:
		slog.WarnContext(ctx, "unknown data type", "dataType", payloadHeader.DataType)
		return nil
	}
}

// handleFire は一斉射撃要求をシミュレートし、タイムラインを配信キューへ積みます。
func (app *ArtilleryApplication) handleFire(ctx context.Context, sessionID domain.SessionID, payload []byte) error {
	fire, err := domain.ParseFirePayload(payload)
	if err != nil {
		return err
	}

	player := timeline.PlayerIDFromBytes(sessionID.Bytes())
	specs := make([]ballistics.ProjectileSpec, 0, len(fire.Shots))
	for _, shot := range fire.Shots {
		spec, err := ballistics.NewSpec(shot.Weapon, player, shot.Origin, shot.Direction, shot.Power)
		if err != nil {
			slog.WarnContext(ctx, "rejecting shot", "sessionID", sessionID, "err", err)
			continue
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil
	}

	events, err := app.sim.SimulateSalvo(specs)
	if err != nil {
		if !errors.Is(err, ballistics.ErrExpiredInFlight) {
			return err
		}
		// 飛行中消滅は致命的ではない。得られたイベントはそのまま配信する。
		slog.WarnContext(ctx, "salvo contained expired projectiles", "sessionID", sessionID, "err", err)
	}
	if len(events) == 0 {
		return nil
	}

	frame, err := domain.EncodeTimelineMessage(sessionID, events)
	if err != nil {
		return err
	}
	app.pendingFrames = append(app.pendingFrames, frame)
	app.scheduler.Schedule(events)

	slog.InfoContext(ctx, "salvo simulated",
		"sessionID", sessionID,
		"shots", len(specs),
		"events", len(events),
	)
	return nil
}

func (app *ArtilleryApplication) handleControl(ctx context.Context, sessionID domain.SessionID, subType domain.ControlSubType) error {
	switch subType {
	case domain.ControlSubTypeJoin:
		tank := app.field.Spawn(sessionID)
		slog.InfoContext(ctx, "tank spawned", "sessionID", sessionID, "position", tank.Position)
	case domain.ControlSubTypeLeave:
		app.field.Remove(sessionID)
		slog.InfoContext(ctx, "tank removed", "sessionID", sessionID)
	default:
	}
	return nil
}

// Tick は前tickまでに完成したタイムラインフレームを返します。
func (app *ArtilleryApplication) Tick(ctx context.Context) [][]byte {
	if len(app.pendingFrames) == 0 {
		return nil
	}
	frames := app.pendingFrames
	app.pendingFrames = nil
	return frames
}

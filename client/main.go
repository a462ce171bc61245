package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"scorched/ballistics"
	core "scorched/domain"
	"scorched/replay"
	"scorched/server/domain"
	"scorched/timeline"
)

// 観戦クライアント。サーバーへ接続して一斉射撃を要求し、受信した
// タイムラインをシーケンサーでローカル再生して弾道を表示する。
func main() {
	var (
		addrFlag    = flag.String("addr", "ws://localhost:9090/ws", "server websocket URL")
		matchFlag   = flag.String("match", "", "match ID (empty for auto-assign)")
		weaponFlag  = flag.Int("weapon", int(ballistics.WeaponStandard), "weapon code: 1=standard 2=heavy 3=bouncer 4=cluster")
		powerFlag   = flag.Float64("power", 40, "initial projectile speed")
		shotsFlag   = flag.Int("shots", 1, "number of shots in the salvo")
		workersFlag = flag.Int("workers", 4, "interpolation worker count")
	)
	flag.Parse()

	if *shotsFlag <= 0 || *shotsFlag > 255 {
		log.Fatalf("shots must be in 1..255")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.Dial(ctx, *addrFlag, nil)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sessionID, err := awaitAssign(ctx, conn)
	if err != nil {
		log.Fatalf("assign failed: %v", err)
	}
	log.Printf("session assigned: %s", sessionID)

	// マッチ参加
	join := domain.JoinPayload{MatchID: domain.MatchID(*matchFlag)}
	joinMsg, err := domain.EncodeMessage(sessionID, domain.DataTypeControl, uint8(domain.ControlSubTypeJoin), join.Encode())
	if err != nil {
		log.Fatalf("encode join failed: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, joinMsg); err != nil {
		log.Fatalf("send join failed: %v", err)
	}

	// 一斉射撃要求
	fire := domain.FirePayload{Shots: buildSalvo(*shotsFlag, *weaponFlag, *powerFlag)}
	fireMsg, err := domain.EncodeMessage(sessionID, domain.DataTypeFire, 0, fire.Encode())
	if err != nil {
		log.Fatalf("encode fire failed: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, fireMsg); err != nil {
		log.Fatalf("send fire failed: %v", err)
	}
	log.Printf("salvo requested: shots=%d weapon=%d power=%.1f", *shotsFlag, *weaponFlag, *powerFlag)

	events, err := awaitTimeline(ctx, conn, sessionID)
	if err != nil {
		log.Fatalf("timeline receive failed: %v", err)
	}
	log.Printf("timeline received: %d events", len(events))

	replayTimeline(ctx, events, *workersFlag)
}

// buildSalvo は水平角を等分したn発分の発射要求を組み立てる。
func buildSalvo(n, weapon int, power float64) []domain.FireShot {
	shots := make([]domain.FireShot, 0, n)
	for i := 0; i < n; i++ {
		yaw := 2 * math.Pi * float64(i) / float64(n)
		shots = append(shots, domain.FireShot{
			Weapon:    timeline.WeaponCode(weapon),
			Origin:    core.Vec3{X: 128, Y: 20, Z: 128},
			Direction: core.Vec3{X: math.Cos(yaw) * 0.7, Y: 0.7, Z: math.Sin(yaw) * 0.7},
			Power:     power,
		})
	}
	return shots
}

// awaitAssign はセッションID通知メッセージを待つ。
func awaitAssign(ctx context.Context, conn *websocket.Conn) (domain.SessionID, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return domain.SessionID{}, err
		}
		header, payloadHeader, err := parseEnvelope(data)
		if err != nil {
			log.Printf("skipping malformed message: %v", err)
			continue
		}
		if payloadHeader.DataType == domain.DataTypeControl &&
			domain.ControlSubType(payloadHeader.SubType) == domain.ControlSubTypeAssign {
			return domain.SessionIDFromBytes(header.SessionID), nil
		}
	}
}

// awaitTimeline はタイムラインメッセージを待つ。待機中のpingにはpongで応答する。
func awaitTimeline(ctx context.Context, conn *websocket.Conn, sessionID domain.SessionID) ([]timeline.Event, error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		_, payloadHeader, err := parseEnvelope(data)
		if err != nil {
			log.Printf("skipping malformed message: %v", err)
			continue
		}
		switch payloadHeader.DataType {
		case domain.DataTypeControl:
			if domain.ControlSubType(payloadHeader.SubType) == domain.ControlSubTypePing {
				pong, err := domain.EncodeMessage(sessionID, domain.DataTypeControl, uint8(domain.ControlSubTypePong), nil)
				if err != nil {
					return nil, err
				}
				if err := conn.Write(ctx, websocket.MessageBinary, pong); err != nil {
					return nil, err
				}
			}
		case domain.DataTypeTimeline:
			return timeline.ParseEvents(data[domain.HeaderSize+domain.PayloadHeaderSize:])
		}
	}
}

func parseEnvelope(data []byte) (*domain.Header, *domain.PayloadHeader, error) {
	header, err := domain.ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	payloadHeader, err := domain.ParsePayloadHeader(data[domain.HeaderSize:])
	if err != nil {
		return nil, nil, err
	}
	return header, payloadHeader, nil
}

// replayTimeline は受信タイムラインを実時間で再生し、弾道を標準出力へ描く。
func replayTimeline(ctx context.Context, events []timeline.Event, workers int) {
	pool := replay.NewPool(workers, 250*time.Millisecond)
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Run(poolCtx)

	seq := replay.NewSequencer(pool)
	seq.OnExplosion(func(impact timeline.Event) {
		fmt.Printf("[%8.1fms] explosion projectile=%s pos=(%.1f, %.1f, %.1f) damage=%.0f\n",
			impact.Time, impact.Projectile,
			impact.Position.X, impact.Position.Y, impact.Position.Z, impact.Damage)
	})
	seq.LoadTimeline(events)

	start := time.Now()
	prev := time.Duration(0)
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()

	for !seq.Done() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Advanceは前回からの増分を受け取る
			elapsed := time.Since(start)
			seq.Advance(ctx, float64(elapsed-prev)/float64(time.Millisecond))
			prev = elapsed
			elapsedMs := float64(elapsed) / float64(time.Millisecond)
			for _, p := range seq.Actives() {
				fmt.Printf("[%8.1fms] projectile=%s pos=(%.1f, %.1f, %.1f)\n",
					elapsedMs, p.ID, p.Position.X, p.Position.Y, p.Position.Z)
			}
		}
	}
	log.Printf("replay complete in %s", time.Since(start))
}

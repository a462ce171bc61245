package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type MatchID string

func (id MatchID) IsEmpty() bool {
	return len(id) == 0
}

var ErrMatchBusy = errors.New("match control channel is full")

// matchSendKind は送信キューのメッセージ種別です。
type matchSendKind uint8

const (
	matchSendBroadcast matchSendKind = 1
	matchSendTo        matchSendKind = 2
)

type matchSend struct {
	kind      matchSendKind
	sessionID SessionID
	data      []byte
}

// matchCtrl はマッチ制御メッセージです。1バイト目が種別を表します。
const (
	matchCtrlJoin  byte = 1
	matchCtrlLeave byte = 2
)

// Match は1つの砲撃戦マッチを表します。観戦者セッションの集合を持ち、
// 注入されたアプリケーションロジックをtickループで駆動します。
type Match struct {
	ID       MatchID
	sessions map[SessionID]struct{}

	pubsub      PubSub
	application Application

	sendCh chan matchSend

	tickInterval time.Duration
}

func NewMatch(id MatchID, pubsub PubSub, application Application) *Match {
	return &Match{
		ID:           id,
		sessions:     make(map[SessionID]struct{}),
		pubsub:       pubsub,
		application:  application,
		sendCh:       make(chan matchSend, 1024),
		tickInterval: time.Second / 60,
	}
}

// WithTickInterval はtick間隔を差し替えます。テストと負荷調整用です。
func (m *Match) WithTickInterval(interval time.Duration) *Match {
	if interval > 0 {
		m.tickInterval = interval
	}
	return m
}

func (m *Match) Broadcast(ctx context.Context, data []byte) {
	for sessionID := range m.sessions {
		topic := Topic("session:" + sessionID.String())
		m.pubsub.Publish(ctx, topic, Message{Data: data})
	}
}

func (m *Match) SendTo(ctx context.Context, sessionID SessionID, data []byte) {
	topic := Topic("session:" + sessionID.String())
	m.pubsub.Publish(ctx, topic, Message{Data: data})
}

func (m *Match) EnqueueBroadcast(ctx context.Context, data []byte) error {
	return m.enqueueSend(ctx, matchSend{kind: matchSendBroadcast, data: data})
}

func (m *Match) EnqueueSendTo(ctx context.Context, sessionID SessionID, data []byte) error {
	return m.enqueueSend(ctx, matchSend{kind: matchSendTo, sessionID: sessionID, data: data})
}

func (m *Match) enqueueSend(ctx context.Context, msg matchSend) error {
	select {
	case <-ctx.Done():
		return nil
	case m.sendCh <- msg:
		return nil
	default:
		return ErrMatchBusy
	}
}

func (m *Match) Run(ctx context.Context) error {
	// マッチ宛のデータメッセージ（発射要求）を購読
	matchTopic := Topic("match:" + string(m.ID))
	msgCh := m.pubsub.Subscribe(matchTopic)
	defer m.pubsub.Unsubscribe(matchTopic, msgCh)

	// マッチ制御用トピックを購読（join/leave）
	ctrlTopic := Topic("match:" + string(m.ID) + ":ctrl")
	ctrlCh := m.pubsub.Subscribe(ctrlTopic)
	defer m.pubsub.Unsubscribe(ctrlTopic, ctrlCh)

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// 制御メッセージを処理（join/leave）
		CTRL_LOOP:
			for {
				select {
				case ctrl := <-ctrlCh:
					m.handleControlMessage(ctx, ctrl)
				default:
					break CTRL_LOOP
				}
			}
			// 受信メッセージを処理
		RECEIVE_LOOP:
			for {
				select {
				case msg := <-msgCh:
					// 発射要求の解釈とシミュレーションはアプリケーションロジックが担当する
					if err := m.application.HandleMessage(ctx, msg.SessionID, msg.Data); err != nil {
						slog.WarnContext(ctx, "match handle message failed", "err", err)
					}
				default:
					break RECEIVE_LOOP
				}
			}
			// 送信するデータがあれば送信する このデータは１フレーム前のデータになる
		SEND_LOOP:
			for {
				select {
				case msg := <-m.sendCh:
					m.handleSendMessage(ctx, msg)
				default:
					break SEND_LOOP
				}
			}
			// ApplicationのTick()を呼び出し、完成したタイムラインをブロードキャスト
			for _, frame := range m.application.Tick(ctx) {
				m.Broadcast(ctx, frame)
			}
		}
	}
}

func (m *Match) handleControlMessage(ctx context.Context, msg Message) {
	if len(msg.Data) == 0 {
		return
	}
	switch msg.Data[0] {
	case matchCtrlJoin:
		m.sessions[msg.SessionID] = struct{}{}
		m.forwardControl(ctx, msg.SessionID, ControlSubTypeJoin)
	case matchCtrlLeave:
		delete(m.sessions, msg.SessionID)
		m.forwardControl(ctx, msg.SessionID, ControlSubTypeLeave)
	default:
		slog.WarnContext(ctx, "unknown match control message", "kind", msg.Data[0])
	}
}

// forwardControl はjoin/leaveをアプリケーションにも通知します（戦車の配置・撤去など）。
func (m *Match) forwardControl(ctx context.Context, sessionID SessionID, subType ControlSubType) {
	data, err := EncodeMessage(sessionID, DataTypeControl, uint8(subType), nil)
	if err != nil {
		return
	}
	if err := m.application.HandleMessage(ctx, sessionID, data); err != nil {
		slog.WarnContext(ctx, "match control forward failed", "err", err)
	}
}

func (m *Match) handleSendMessage(ctx context.Context, msg matchSend) {
	switch msg.kind {
	case matchSendBroadcast:
		m.Broadcast(ctx, msg.data)
	case matchSendTo:
		m.SendTo(ctx, msg.sessionID, msg.data)
	default:
	}
}

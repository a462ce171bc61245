package domain

import (
	"context"
	"log/slog"
	"sync"
)

type Topic string

// Message はPubSubで運ばれる1メッセージです。
type Message struct {
	SessionID SessionID
	Data      []byte
}

//go:generate go tool mockgen -destination=./mocks/pubsub_mock.go -package=mocks . PubSub

// PubSub はトピック単位のプロセス内メッセージ配送を行います。
type PubSub interface {
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
	Publish(ctx context.Context, topic Topic, msg Message)
}

const subscriberBuffer = 256

// SimplePubSub はチャネルベースのPubSub実装です。
// 購読者のチャネルが満杯の場合、メッセージはブロックせずに破棄されます。
type SimplePubSub struct {
	mu   sync.RWMutex
	subs map[Topic][]chan Message
}

func NewSimplePubSub() *SimplePubSub {
	return &SimplePubSub{
		subs: make(map[Topic][]chan Message),
	}
}

func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, subscriberBuffer)
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], ch)
	p.mu.Unlock()
	return ch
}

func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subs[topic]
	for i, c := range subs {
		if c == ch {
			p.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(c)
			break
		}
	}
	if len(p.subs[topic]) == 0 {
		delete(p.subs, topic)
	}
}

func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) {
	p.mu.RLock()
	subs := p.subs[topic]
	p.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			slog.WarnContext(ctx, "pubsub: subscriber channel full, message dropped", "topic", topic)
		}
	}
}

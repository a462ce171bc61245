package domain

import "context"

// Application はマッチに注入されるゲームロジックの境界です。
// HandleMessageはマッチ宛メッセージを処理し、Tickは1tick分の処理を行って
// ブロードキャストすべきフレームを返します。どちらもマッチのtickループの
// goroutineからのみ呼ばれます。
type Application interface {
	HandleMessage(ctx context.Context, sessionID SessionID, data []byte) error
	Tick(ctx context.Context) [][]byte
}

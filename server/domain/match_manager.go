package domain

import "context"

//go:generate go tool mockgen -destination=./mocks/match_manager_mock.go -package=mocks . MatchManager

// MatchManager はセッションの参加先マッチを解決します。
type MatchManager interface {
	GetMatch(ctx context.Context, sessionID SessionID) (MatchID, error)
}

// SimpleMatchManager は常に既定のマッチへ割り当てる実装です。
type SimpleMatchManager struct {
	defaultID MatchID
}

func NewSimpleMatchManager(defaultID MatchID) *SimpleMatchManager {
	return &SimpleMatchManager{defaultID: defaultID}
}

func (m *SimpleMatchManager) GetMatch(ctx context.Context, sessionID SessionID) (MatchID, error) {
	return m.defaultID, nil
}

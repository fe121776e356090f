package activation

import "context"

// Store 抽象了激活状态的持久化接口。
//
// Save 只有在存储中的版本号等于 state.Version 时才会成功，成功后版本号加一；
// 否则返回 ErrConflict，调用方需要重新读取并重新计算。
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Create(ctx context.Context, userID, agentID string) (*State, error)
	Save(ctx context.Context, state *State) error
	FindByUserAgent(ctx context.Context, userID, agentID string) (*State, error)
	Close() error
}

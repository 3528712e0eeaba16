package pimsync

import (
	"context"
	"time"
)

// CacheStore is the path keyed response cache shared by all job steps.
// Read and decode failures are reported as misses; write failures are logged
// and never returned.
type CacheStore interface {
	Get(ctx context.Context, key string, out any) bool
	GetText(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value any)
	SetText(ctx context.Context, key string, text string)
	Clear(ctx context.Context, prefix string)
	ListKeys(ctx context.Context, prefix string) []string
	AppendOptionShard(ctx context.Context, key string, items []AttributeOption)
	ShardCount(ctx context.Context, key string) int
}

// Sink receives target nodes in emission order.
type Sink interface {
	Emit(e Emission)
}

// StoredToken is the persisted bearer token
type StoredToken struct {
	Token             string `json:"token"`
	TokenExpiryTime   int64  `json:"tokenExpiryTime"`
	ServiceGeneralURL string `json:"serviceGeneralURL"`
}

// TokenStore persists the bearer token between job steps
type TokenStore interface {
	LoadToken(ctx context.Context) (*StoredToken, error)
	SaveToken(ctx context.Context, token StoredToken) error
}

// Watermark is the durable import marker of one runtime object
type Watermark struct {
	RuntimeID        string    `json:"runtimeId"`
	LastImportedTime string    `json:"lastImportedTime"`
	IsFullImport     bool      `json:"isFullImport"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// WatermarkStore keeps last successful import timestamps
type WatermarkStore interface {
	LoadWatermark(ctx context.Context, runtimeID string) (*Watermark, error)
	SaveWatermark(ctx context.Context, w Watermark) error
}

package repository

import (
	"context"
)

// PriceStore is the gateway's view of the processor's Redis state
type PriceStore interface {
	GetSnapshots(ctx context.Context, topics []string) ([]string, error)
	SubscribeToFeed(ctx context.Context, topic string) error
	UnsubscribeFromFeed(ctx context.Context, topic string) error
	RunPubSub(ctx context.Context, onMessage func(topic string, payload string))
	Close() error
}

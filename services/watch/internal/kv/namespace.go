package kv

import (
	"context"
	"strings"
)

type namespaced struct {
	base   Storage
	prefix string
}

// Namespace returns a view of base whose keys are scoped to profileID.
func Namespace(base Storage, profileID string) Storage {
	return &namespaced{base: base, prefix: "profile:" + strings.TrimSpace(profileID) + ":"}
}

func (n *namespaced) GetItem(ctx context.Context, key string) (string, bool, error) {
	return n.base.GetItem(ctx, n.prefix+key)
}

func (n *namespaced) SetItem(ctx context.Context, key, value string) error {
	return n.base.SetItem(ctx, n.prefix+key, value)
}

func (n *namespaced) RemoveItem(ctx context.Context, key string) error {
	return n.base.RemoveItem(ctx, n.prefix+key)
}

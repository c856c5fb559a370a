// Package identity manages the correlation token attached to archived exchanges.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zhouzirui/chatdesk/backend/internal/storage"
)

// StorageKey is the fixed key the identity is persisted under.
const StorageKey = "chatbot_session_id"

// HeaderName lets a client supply its own per-device identity.
const HeaderName = "X-Session-Identity"

// Resolve returns the persisted identity, generating and saving one on first use.
// The identity is only ever used to correlate logs.
func Resolve(ctx context.Context, kv storage.Store) (string, error) {
	existing, err := kv.Get(ctx, StorageKey)
	if err == nil && strings.TrimSpace(existing) != "" {
		return existing, nil
	}
	if err != nil && !storage.IsNotFound(err) {
		return "", fmt.Errorf("load session identity: %w", err)
	}

	id := "session_" + uuid.NewString()
	if err := kv.Put(ctx, StorageKey, id); err != nil {
		return "", fmt.Errorf("persist session identity: %w", err)
	}
	return id, nil
}

// Pick prefers a client supplied identity over the server default.
func Pick(clientSupplied, fallback string) string {
	if v := strings.TrimSpace(clientSupplied); v != "" {
		return v
	}
	return fallback
}

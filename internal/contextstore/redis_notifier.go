package contextstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/workflow-engine/common/redis"
)

// RedisNotifier mirrors context writes to a Redis pub/sub channel so a
// distributed live-view collaborator (outside the core's scope, §1) can
// observe them, per SPEC_FULL §1.2's optional "distributed notification
// side-channel" row. Single-process operation never requires one; the
// engine falls back to a nil Notifier when none is configured.
type RedisNotifier struct {
	client  *redis.Client
	channel string // e.g. "workflow:<workflow_id>:contexts"
}

// NewRedisNotifier wraps an existing Redis client. The channel is fixed at
// construction so callers can namespace notifications per run or per
// workflow as they see fit.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Publish implements Notifier by publishing {context_id, value} as JSON.
func (n *RedisNotifier) Publish(contextID string, value interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"context_id": contextID,
		"value":      value,
	})
	if err != nil {
		return fmt.Errorf("marshal context notification: %w", err)
	}
	return n.client.PublishEvent(context.Background(), n.channel, string(payload))
}

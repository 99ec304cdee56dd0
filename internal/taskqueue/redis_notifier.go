package taskqueue

import (
	"context"
	"encoding/json"

	"github.com/lyzr/workflow-engine/common/redis"
)

// RedisNotifier publishes a task's final state to a Redis channel on
// completion/rejection, mirroring the teacher's hitl_worker
// approval-response publish without requiring Redis for single-process
// operation (taskqueue.Store works with a nil Notifier).
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier wraps an existing Redis client.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// NotifyTaskResolved implements Notifier.
func (n *RedisNotifier) NotifyTaskResolved(task *HumanTask) {
	payload, err := json.Marshal(task)
	if err != nil {
		return
	}
	_ = n.client.PublishEvent(context.Background(), n.channel, string(payload))
}

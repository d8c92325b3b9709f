// Package notifications fans new comments out to websocket subscribers.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const postChannelPrefix = "comments:post:"

// Notifier publishes comment events into Redis so every instance can relay them.
type Notifier struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewNotifier creates a Notifier. A nil client makes every publish a no-op.
func NewNotifier(rdb *redis.Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{rdb: rdb, logger: logger}
}

// Enabled reports whether a Redis client is wired.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishPost sends payload to the channel of postID.
func (n *Notifier) PublishPost(ctx context.Context, postID uint, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, PostChannel(postID), payload).Err()
}

// StartPostSubscriber subscribes to every post channel and calls onMessage
// with the post ID and payload until ctx is cancelled.
func (n *Notifier) StartPostSubscriber(ctx context.Context, onMessage func(postID uint, payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, postChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe comment feed: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				postID, ok := ParsePostChannel(msg.Channel)
				if !ok {
					n.logger.Warn("invalid comment feed channel", slog.String("channel", msg.Channel))
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							n.logger.Error("panic in comment feed subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(postID, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// PostChannel derives the Redis channel name for a post's comment feed.
func PostChannel(postID uint) string {
	return postChannelPrefix + strconv.FormatUint(uint64(postID), 10)
}

// ParsePostChannel is the inverse of PostChannel.
func ParsePostChannel(channel string) (uint, bool) {
	raw, ok := strings.CutPrefix(channel, postChannelPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"blango/internal/models"
	"blango/internal/serializers"
)

// EventCommentCreated is the only event type on a comment feed.
const EventCommentCreated = "comment.created"

// CommentEvent is the JSON frame delivered to feed subscribers.
type CommentEvent struct {
	Type    string              `json:"type"`
	PostID  uint                `json:"post_id"`
	Payload serializers.Comment `json:"payload"`
}

// CommentFeed publishes new comments to live subscribers. With Redis the event
// goes through pub/sub so every instance's Hub receives it; without Redis it
// is broadcast to the local Hub only.
type CommentFeed struct {
	hub      *Hub
	notifier *Notifier
	logger   *slog.Logger
}

func NewCommentFeed(hub *Hub, notifier *Notifier, logger *slog.Logger) *CommentFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommentFeed{hub: hub, notifier: notifier, logger: logger}
}

// Hub returns the local hub that websocket handlers register with.
func (f *CommentFeed) Hub() *Hub { return f.hub }

// Start relays Redis events into the local hub until ctx is done.
func (f *CommentFeed) Start(ctx context.Context) error {
	return f.hub.StartWiring(ctx, f.notifier)
}

// PublishComment never fails the caller; delivery problems are logged.
func (f *CommentFeed) PublishComment(ctx context.Context, postID uint, comment *models.Comment) {
	data, err := json.Marshal(CommentEvent{
		Type:    EventCommentCreated,
		PostID:  postID,
		Payload: serializers.NewComment(comment),
	})
	if err != nil {
		f.logger.ErrorContext(ctx, "encode comment event", slog.Any("error", err))
		return
	}

	if !f.notifier.Enabled() {
		f.hub.Broadcast(postID, data)
		return
	}
	if err := f.notifier.PublishPost(ctx, postID, string(data)); err != nil {
		f.logger.WarnContext(ctx, "publish comment event failed, delivering locally",
			slog.Uint64("post_id", uint64(postID)),
			slog.Any("error", err),
		)
		f.hub.Broadcast(postID, data)
	}
}

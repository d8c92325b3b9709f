package server

import (
	"errors"
	"log/slog"

	"blango/internal/middleware"
	"blango/internal/models"
	"blango/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	localFeedPostID = "feedPostID"
	localFeedUserID = "feedUserID"
)

// CommentFeedUpgrade checks the request before the websocket upgrade: the
// post must exist and be visible to the caller.
func (s *Server) CommentFeedUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return models.RespondWithError(c, fiber.NewError(fiber.StatusUpgradeRequired, "websocket upgrade required"))
	}
	id, err := parseID(c, "id")
	if err != nil {
		return models.RespondWithError(c, err)
	}
	if _, err := s.postService.Get(c.UserContext(), requester(c), id); err != nil {
		return models.RespondWithError(c, err)
	}
	c.Locals(localFeedPostID, id)
	if userID, ok := middleware.CurrentUserID(c); ok {
		c.Locals(localFeedUserID, userID)
	}
	return c.Next()
}

// CommentFeed handles GET /api/v1/posts/:id/comments/ws
// @Summary Live comment feed
// @Description Upgrades to a websocket that receives {"type":"comment.created"} events for the post.
// @Tags posts
// @Param id path int true "Post ID"
// @Success 101
// @Failure 404 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /posts/{id}/comments/ws [get]
func (s *Server) CommentFeed() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		postID, _ := conn.Locals(localFeedPostID).(uint)
		userID, _ := conn.Locals(localFeedUserID).(uint)

		client, err := s.feed.Hub().Register(postID, userID, conn)
		if err != nil {
			if !errors.Is(err, notifications.ErrHubDown) {
				s.logger.Warn("comment feed rejected connection",
					slog.Uint64("post_id", uint64(postID)),
					slog.String("error", err.Error()),
				)
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// Package events publishes domain events so other systems can react to
// account and post changes without polling the database.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Event topic constants
const (
	TopicUserCreated = "postboard.user.created"
	TopicPostCreated = "postboard.post.created"
	TopicPostUpdated = "postboard.post.updated"
	TopicPostDeleted = "postboard.post.deleted"
)

// Event types

type UserCreated struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
}

type PostCreated struct {
	PostID     string    `json:"post_id"`
	CreatorID  string    `json:"creator_id"`
	Title      string    `json:"title"`
	OccurredAt time.Time `json:"occurred_at"`
}

type PostUpdated struct {
	PostID     string         `json:"post_id"`
	Changes    map[string]any `json:"changes"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type PostDeleted struct {
	PostID     string    `json:"post_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Emit publishes event and logs a failure instead of returning it. The
// request that caused the event has already succeeded by the time it is
// emitted, so a broker outage must not turn it into an error.
func Emit(ctx context.Context, pub Publisher, logger logrus.FieldLogger, topic string, event any) {
	if err := pub.Publish(ctx, topic, event); err != nil {
		logger.WithError(err).WithField("topic", topic).Warn("failed to publish event")
	}
}

package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/fairshare/internal/store"
)

// Notifier fans out task events to a user's registered devices.
// Expired subscriptions are pruned as they surface; send failures are
// logged and swallowed so a dead push endpoint never fails the request
// that triggered it.
type Notifier struct {
	service *Service
	subs    *store.PushStore
	logger  *slog.Logger
}

func NewNotifier(service *Service, subs *store.PushStore, logger *slog.Logger) *Notifier {
	return &Notifier{service: service, subs: subs, logger: logger}
}

// TaskAssigned notifies the new assignee.
func (n *Notifier) TaskAssigned(ctx context.Context, userID int64, taskID int64, taskTitle string) {
	n.send(ctx, userID, Payload{
		Title: "New task assigned",
		Body:  fmt.Sprintf("You're now on: %s", taskTitle),
		URL:   fmt.Sprintf("/tasks/%d", taskID),
		Tag:   fmt.Sprintf("task-assigned-%d", taskID),
	})
}

// TaskCompleted notifies the task's assignee that someone else finished
// it for them.
func (n *Notifier) TaskCompleted(ctx context.Context, userID int64, taskID int64, taskTitle, completedBy string) {
	n.send(ctx, userID, Payload{
		Title: "Task completed",
		Body:  fmt.Sprintf("%s finished: %s", completedBy, taskTitle),
		URL:   fmt.Sprintf("/tasks/%d", taskID),
		Tag:   fmt.Sprintf("task-completed-%d", taskID),
	})
}

func (n *Notifier) send(ctx context.Context, userID int64, payload Payload) {
	if n == nil || n.service == nil {
		return
	}

	subs, err := n.subs.ListByUser(ctx, userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		err := n.service.Send(ctx, sub, payload)
		if errors.Is(err, ErrExpired) {
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Error("prune expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			n.logger.Warn("send push", "user_id", userID, "error", err)
		}
	}
}

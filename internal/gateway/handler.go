package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/todoclaw/internal/bus"
	"github.com/stellarlinkco/todoclaw/internal/command"
	"github.com/stellarlinkco/todoclaw/internal/format"
	"github.com/stellarlinkco/todoclaw/internal/task"
)

type HandlerOptions struct {
	// ListLimit caps "list all"; other views use the manager default.
	ListLimit int
	Now       func() time.Time
	Logger    *zap.Logger
}

// Handler turns one inbound chat message into replies. The team of a task is
// the platform the message came from and its channel is the chat id.
type Handler struct {
	tasks     *task.Manager
	parser    *command.Parser
	fmt       *format.Formatter
	listLimit int
	now       func() time.Time
	log       *zap.Logger
}

func NewHandler(tasks *task.Manager, parser *command.Parser, f *format.Formatter, opts HandlerOptions) *Handler {
	h := &Handler{
		tasks:     tasks,
		parser:    parser,
		fmt:       f,
		listLimit: opts.ListLimit,
		now:       opts.Now,
		log:       opts.Logger,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	h.log = h.log.Named("handler")
	return h
}

// Handle processes msg and returns the messages to send: the reply to the
// originating chat and, for new assignments, a notice to the assignee.
// Unaddressed group chatter that is neither a command nor a task yields
// nothing.
func (h *Handler) Handle(ctx context.Context, msg bus.InboundMessage) []bus.OutboundMessage {
	teamID := msg.Channel
	user := task.User{
		ID:       msg.SenderID,
		Username: msg.SenderName,
		TeamID:   teamID,
	}
	if name, ok := msg.Metadata["first_name"].(string); ok {
		user.DisplayName = name
	}
	h.tasks.Remember(ctx, user)

	cmd := h.parser.Parse(msg.Content)
	if cmd.Kind == command.KindNone {
		if msg.Direct || msg.Mentioned {
			return []bus.OutboundMessage{reply(msg, format.Help())}
		}
		return nil
	}

	h.log.Debug("command",
		zap.String("kind", cmd.Kind.String()),
		zap.String("team", teamID),
		zap.String("user", user.ID),
		zap.String("chat", msg.ChatID))

	now := h.now()
	var out []bus.OutboundMessage
	text, err := h.route(ctx, cmd, user, msg, now, &out)
	if err != nil {
		text = h.errorText(err, cmd, user)
	}
	if text == "" {
		return out
	}
	return append([]bus.OutboundMessage{reply(msg, text)}, out...)
}

func (h *Handler) route(ctx context.Context, cmd command.Command, user task.User, msg bus.InboundMessage, now time.Time, extra *[]bus.OutboundMessage) (string, error) {
	teamID := user.TeamID

	switch cmd.Kind {
	case command.KindHelp:
		return format.Help(), nil

	case command.KindCreate:
		t, err := h.tasks.Create(ctx, cmd.Draft, user, teamID, msg.ChatID)
		if err != nil {
			return "", err
		}
		h.log.Info("task created", zap.String("task", t.ID), zap.String("team", teamID), zap.String("user", user.ID))
		if a := t.Assignee; a != nil && a.Resolved() && a.ID != user.ID {
			*extra = append(*extra, bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  a.ID,
				Content: h.fmt.AssignedNotice(t, now),
			})
		}
		return h.fmt.Created(t, now), nil

	case command.KindList:
		view := cmd.View
		if view == "" {
			view = task.ViewPending
		}
		limit := 0
		if view == task.ViewAll {
			limit = h.listLimit
		}
		tasks, err := h.tasks.List(ctx, user.ID, teamID, view, limit)
		if err != nil {
			return "", err
		}
		return h.fmt.TaskList(format.ListTitle(view), tasks, now), nil

	case command.KindComplete:
		t, err := h.tasks.Complete(ctx, cmd.TaskID, user.ID, teamID)
		if errors.Is(err, task.ErrAlreadyDone) && t != nil {
			return h.fmt.AlreadyDone(t), nil
		}
		if err != nil {
			return "", err
		}
		return h.fmt.Completed(t), nil

	case command.KindSnooze:
		t, until, err := h.tasks.Snooze(ctx, cmd.TaskID, cmd.TimeExpr, user.ID, teamID)
		if err != nil {
			return "", err
		}
		return h.fmt.Snoozed(t, until, now), nil

	case command.KindDelete:
		t, err := h.tasks.Delete(ctx, cmd.TaskID, user.ID, teamID)
		if err != nil {
			return "", err
		}
		return h.fmt.Deleted(t), nil

	case command.KindShow:
		t, err := h.tasks.Show(ctx, cmd.TaskID, user.ID, teamID)
		if err != nil {
			return "", err
		}
		return h.fmt.TaskDetail(t, now), nil

	case command.KindReassign:
		t, err := h.tasks.Reassign(ctx, cmd.TaskID, cmd.Assignee, user.ID, teamID)
		if err != nil {
			return "", err
		}
		if a := t.Assignee; a != nil && a.Resolved() && a.ID != user.ID {
			*extra = append(*extra, bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  a.ID,
				Content: h.fmt.AssignedNotice(t, now),
			})
		}
		return h.fmt.Reassigned(t), nil

	case command.KindSearch:
		tasks, err := h.tasks.Search(ctx, cmd.Query, user.ID, teamID)
		if err != nil {
			return "", err
		}
		return h.fmt.SearchResults(cmd.Query, tasks, now), nil
	}

	return format.Help(), nil
}

func (h *Handler) errorText(err error, cmd command.Command, user task.User) string {
	switch {
	case errors.Is(err, task.ErrInvalidCommand),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, task.ErrForbidden),
		errors.Is(err, task.ErrInvalidState):
		h.log.Debug("command rejected", zap.String("kind", cmd.Kind.String()), zap.String("user", user.ID), zap.Error(err))
	default:
		h.log.Error("command failed", zap.String("kind", cmd.Kind.String()), zap.String("user", user.ID), zap.Error(err))
	}
	return format.Error(err)
}

func reply(msg bus.InboundMessage, content string) bus.OutboundMessage {
	return bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	}
}

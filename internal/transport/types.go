package transport

import (
	"context"
	"strconv"
	"strings"
)

// ChatTarget addresses a chat either by numeric id or by public @username.
type ChatTarget struct {
	ChatID   int64
	Username string // "@channel"; used when ChatID is zero
	ThreadID int    // telegram forum topic thread id (0 if none)
}

// ParseChatTarget accepts "-100123", "123" or "@channel".
func ParseChatTarget(s string) (ChatTarget, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatTarget{}, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id != 0 {
		return ChatTarget{ChatID: id}, true
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	if len(s) < 2 || strings.ContainsAny(s, " \t\r\n") {
		return ChatTarget{}, false
	}
	return ChatTarget{Username: s}, true
}

func (t ChatTarget) String() string {
	if t.ChatID != 0 {
		return strconv.FormatInt(t.ChatID, 10)
	}
	return t.Username
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound half of a messaging adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	// SendPhoto posts a photo referenced by URL with a caption.
	SendPhoto(ctx context.Context, to ChatTarget, photoURL, caption string, opt *SendOptions) (MessageRef, error)
}

package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-interview-scoring/core"
	"github.com/goliatone/go-interview-scoring/transport"
	"github.com/redis/go-redis/v9"
)

// ChatWebhookSink posts alerts to an incoming-webhook chat integration
// using the common {"text": ...} payload.
type ChatWebhookSink struct {
	doer transport.Doer
	url  string
}

func NewChatWebhookSink(doer transport.Doer, url string) (*ChatWebhookSink, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("alerts: webhook url is required")
	}
	if doer == nil {
		doer = transport.NewRESTAdapter(nil)
	}
	return &ChatWebhookSink{doer: doer, url: url}, nil
}

func (s *ChatWebhookSink) Alert(ctx context.Context, alert core.Alert) error {
	if s == nil || s.doer == nil {
		return fmt.Errorf("alerts: chat sink is not configured")
	}
	_, err := transport.PostJSON(ctx, s.doer, s.url, nil, map[string]string{"text": FormatText(alert)})
	return err
}

// FormatText renders the alert as title, description and sorted fields.
func FormatText(alert core.Alert) string {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(strings.TrimSpace(alert.Title))
	b.WriteString("*")
	if desc := strings.TrimSpace(alert.Description); desc != "" {
		b.WriteString("\n")
		b.WriteString(desc)
	}
	for _, key := range sortedKeys(alert.Fields) {
		fmt.Fprintf(&b, "\n• %s: %v", key, alert.Fields[key])
	}
	return b.String()
}

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

const defaultStream = "scoring:alerts"

// RedisStreamSink appends each alert to a redis stream so any number of
// consumers can fan it out.
type RedisStreamSink struct {
	client streamAdder
	stream string
	maxLen int64
	now    func() time.Time
}

func NewRedisStreamSink(client streamAdder, stream string, maxLen int64) (*RedisStreamSink, error) {
	if client == nil {
		return nil, fmt.Errorf("alerts: redis client is required")
	}
	if stream = strings.TrimSpace(stream); stream == "" {
		stream = defaultStream
	}
	return &RedisStreamSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *RedisStreamSink) Alert(ctx context.Context, alert core.Alert) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("alerts: redis sink is not configured")
	}
	values := map[string]any{
		"title":       strings.TrimSpace(alert.Title),
		"description": strings.TrimSpace(alert.Description),
		"raised_at":   s.now().Format(time.RFC3339),
	}
	for key, value := range alert.Fields {
		values["field."+key] = fmt.Sprintf("%v", value)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
		ID:     "*",
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

// Fanout delivers to every sink and joins the failures.
type Fanout []core.AlertingSink

func (f Fanout) Alert(ctx context.Context, alert core.Alert) error {
	var failures []string
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Alert(ctx, alert); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("alerts: %d sink(s) failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ core.AlertingSink = (*ChatWebhookSink)(nil)
	_ core.AlertingSink = (*RedisStreamSink)(nil)
	_ core.AlertingSink = Fanout(nil)
	_ streamAdder       = (*redis.Client)(nil)
)

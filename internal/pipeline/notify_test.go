package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	p.channel = channel
	p.payload, _ = message.([]byte)
	return redis.NewIntResult(1, p.err)
}

func TestRedisNotifierPublishesOnUserChannel(t *testing.T) {
	pub := &fakePublisher{}
	n := &RedisNotifier{client: pub}

	err := n.Notify(context.Background(), 7, Notification{Status: StatusSuccess, AnalysisType: "general_health_check", AIProvider: "A", Score: 80})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if pub.channel != "user_notify:7" {
		t.Fatalf("channel = %q", pub.channel)
	}
	var decoded map[string]any
	if err := json.Unmarshal(pub.payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded["status"] != "success" || decoded["score"] != float64(80) || decoded["error_code"] != float64(0) {
		t.Fatalf("payload = %v", decoded)
	}
	if _, ok := decoded["error_message"]; ok {
		t.Fatal("error_message should be omitted on success")
	}
}

func TestRedisNotifierWrapsPublishError(t *testing.T) {
	boom := errors.New("connection refused")
	n := &RedisNotifier{client: &fakePublisher{err: boom}}
	if err := n.Notify(context.Background(), 1, Notification{Status: StatusError}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

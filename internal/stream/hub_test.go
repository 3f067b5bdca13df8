package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
	return nil
}

func TestHubBroadcastLocal(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	client := hub.Register("m1")
	defer hub.Unregister(client)
	other := hub.Register("m2")
	defer hub.Unregister(other)

	hub.Broadcast("m1", []byte("hello"))
	if string(receive(t, client)) != "hello" {
		t.Fatalf("unexpected message")
	}
	select {
	case <-other.Send:
		t.Fatalf("event leaked to another member")
	default:
	}
}

func TestHubPublishEncodesEvent(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	client := hub.Register("m1")
	defer hub.Unregister(client)

	hub.Publish(Event{Type: EventPhotoUploaded, MemberID: "m1", PhotoID: "p1", FileName: "f.jpg"})

	var ev Event
	if err := json.Unmarshal(receive(t, client), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventPhotoUploaded || ev.PhotoID != "p1" || ev.At.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestHubHelpers(t *testing.T) {
	ch := redisChannel("abc")
	if ch != "photos:abc:events" {
		t.Fatalf("unexpected channel %q", ch)
	}
	if memberIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected member id")
	}
	if memberIDFromChannel("bad") != "" {
		t.Fatalf("expected empty member id")
	}
	if memberIDFromChannel("posts:abc:events") != "" {
		t.Fatalf("expected foreign channel ignored")
	}
}

func TestUnregisterClosesOnce(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("m2")
	hub.Unregister(client)
	hub.Unregister(client)
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected channel closed")
	}
	hub.Broadcast("m2", []byte("after close"))
}

func TestHubRedisFanOut(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	hub := NewHub(rdb)
	defer hub.Close()
	client := hub.Register("m1")
	defer hub.Unregister(client)

	hub.Broadcast("m1", []byte("ping"))
	if string(receive(t, client)) != "ping" {
		t.Fatalf("unexpected message")
	}
	select {
	case <-client.Send:
		t.Fatalf("message delivered twice")
	case <-time.After(50 * time.Millisecond):
	}

	// another instance publishing on the same channel
	if err := rdb.Publish(context.Background(), redisChannel("m1"), "pong").Err(); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	if string(receive(t, client)) != "pong" {
		t.Fatalf("unexpected message from redis")
	}
}

func TestHubFallsBackWhenRedisDown(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	s.Close()
	defer rdb.Close()

	hub := NewHub(rdb)
	defer hub.Close()
	client := hub.Register("m3")
	defer hub.Unregister(client)

	hub.Broadcast("m3", []byte("ping"))
	if string(receive(t, client)) != "ping" {
		t.Fatalf("expected local delivery")
	}
}

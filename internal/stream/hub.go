// Package stream pushes photo events to a member's open websocket
// connections, fanned out across instances over redis pub/sub.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"backend-dailyrecord/internal/logging"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	EventPhotoUploaded = "photo.uploaded"
	EventPhotoAnalyzed = "photo.analyzed"

	channelPrefix  = "photos:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
)

type Event struct {
	Type     string    `json:"type"`
	MemberID string    `json:"memberId"`
	PhotoID  string    `json:"photoId"`
	FileName string    `json:"fileName,omitempty"`
	At       time.Time `json:"at"`
}

type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	cancel  context.CancelFunc
	done    chan struct{}
}

type Client struct {
	MemberID string
	Send     chan []byte
}

// NewHub returns a hub delivering in-process, or through redis when a client
// is given. With redis every instance, this one included, receives events
// from the subscription so local delivery happens exactly once.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if redisClient == nil {
		close(h.done)
		return h
	}

	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		logging.Warn().Err(err).Msg("redis subscribe failed, events stay local")
		_ = pubsub.Close()
		h.redis = nil
		close(h.done)
		return h
	}
	go h.subscribeRedis(ctx, pubsub)
	return h
}

func (h *Hub) Register(memberID string) *Client {
	client := &Client{
		MemberID: memberID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[memberID] == nil {
		h.clients[memberID] = map[*Client]struct{}{}
	}
	h.clients[memberID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	memberClients, ok := h.clients[client.MemberID]
	if !ok {
		return
	}
	if _, ok := memberClients[client]; !ok {
		return
	}
	delete(memberClients, client)
	if len(memberClients) == 0 {
		delete(h.clients, client.MemberID)
	}
	close(client.Send)
}

// Publish encodes ev and delivers it to the member's connections.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Error().Err(err).Msg("encode stream event")
		return
	}
	h.Broadcast(ev.MemberID, payload)
}

func (h *Hub) Broadcast(memberID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(memberID), payload).Err()
		if err == nil {
			return
		}
		logging.Warn().Err(err).Str("member_id", memberID).Msg("redis publish failed, delivering locally")
	}
	h.deliver(memberID, payload)
}

func (h *Hub) deliver(memberID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[memberID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// Close stops the redis subscription.
func (h *Hub) Close() {
	h.cancel()
	<-h.done
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if memberID := memberIDFromChannel(msg.Channel); memberID != "" {
				h.deliver(memberID, []byte(msg.Payload))
			}
		}
	}
}

func redisChannel(memberID string) string {
	return channelPrefix + memberID + channelSuffix
}

func memberIDFromChannel(ch string) string {
	// photos:{member}:events
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}

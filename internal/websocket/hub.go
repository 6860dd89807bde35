package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const clientBuffer = 32

// Client is one connected socket as seen by the hub.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	send   chan []byte
	rooms  map[string]struct{}
}

// Send yields the frames queued for the client. It is closed on Remove.
func (c *Client) Send() <-chan []byte { return c.send }

// Hub fans room notifications out to the sockets connected to this instance.
// Every instance pattern-subscribes to all room channels, so a notification
// published anywhere reaches its room members everywhere.
type Hub struct {
	rdb *redis.Client
	log zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub(rdb *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		rdb:   rdb,
		log:   log.With().Str("component", "ws_hub").Logger(),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) NewClient(userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		send:   make(chan []byte, clientBuffer),
		rooms:  make(map[string]struct{}),
	}
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave reports whether the client was in room.
func (h *Hub) Leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := c.rooms[room]; !ok {
		return false
	}
	h.leaveLocked(c, room)
	return true
}

// Remove drops the client from every room and closes its send channel.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Deliver queues data for every member of room and returns how many got it.
// Slow clients whose buffer is full miss the frame.
func (h *Hub) Deliver(room string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		select {
		case c.send <- data:
			delivered++
		default:
			h.log.Warn().
				Str("room", room).
				Str("client_id", c.ID.String()).
				Msg("Client buffer full, dropping notification")
		}
	}
	return delivered
}

// Members returns the number of local sockets in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Run relays room channels from Redis until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.PSubscribe(ctx, config.RoomChannelPrefix+"*")
	defer pubsub.Close()

	h.log.Info().Msg("Hub subscribed to room channels")
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Hub stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Deliver(config.CacheKey.RoomFromChannel(msg.Channel), []byte(msg.Payload))
		}
	}
}

// Queue hands a direct reply to the client's writer. It reports false when
// the buffer is full.
func (c *Client) Queue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

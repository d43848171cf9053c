package hub

import (
	"Wayfarer/internal/event"
	"Wayfarer/internal/model"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Number of open websocket connections",
	})

	emittedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_emitted_total",
		Help: "Events emitted to websocket rooms",
	}, []string{"event"})
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]*Client
}

// Options configures a Hub.
type Options struct {
	AllowedOrigins []string
	// Relay forwards emits to other instances. Nil keeps delivery local.
	Relay Relay
}

type Hub struct {
	shards     [shardCount]*roomBucket
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	relay      Relay
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewHub(opts Options, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		relay:      opts.Relay,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &roomBucket{
			rooms: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-h.inbound:
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	if h.relay != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.relay.Subscribe(h.ctx, h.publishToRoom); err != nil && h.ctx.Err() == nil {
				h.logger.Error("relay subscription ended", zap.Error(err))
			}
		}()
	}

	return h
}

// EmitToRoom delivers an event to every local client in room and, when a
// relay is configured, to clients connected to other instances.
func (h *Hub) EmitToRoom(ctx context.Context, room, name string, payload interface{}) error {
	ev, err := event.New(room, name, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	emittedEventsTotal.WithLabelValues(name).Inc()
	h.publishToRoom(ev)

	if h.relay != nil {
		if err := h.relay.Publish(ctx, ev); err != nil {
			return fmt.Errorf("relay %s: %w", name, err)
		}
	}
	return nil
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventTyping:
		var typing model.TypingIndicator
		if err := json.Unmarshal(ev.Payload, &typing); err != nil {
			h.logger.Debug("malformed typing event", zap.String("client_id", c.ID), zap.Error(err))
			return
		}
		typing.UserID = c.UserID()

		// Users type towards the admin desk; admins name the user they answer.
		room := event.RoomAdminSupport
		if c.IsAdmin() {
			if typing.TargetUserID == "" {
				return
			}
			room = event.UserRoom(typing.TargetUserID)
		} else {
			typing.TargetUserID = ""
		}

		if err := h.EmitToRoom(h.ctx, room, event.EventTyping, typing); err != nil {
			h.logger.Debug("typing forward failed", zap.String("room", room), zap.Error(err))
		}
	default:
		h.logger.Debug("unknown event type", zap.String("event", ev.Event), zap.String("client_id", c.ID))
	}
}

func (h *Hub) publishToRoom(ev event.WsEvent) {
	b := h.shards[getShard(ev.Room)]

	// collect clients while holding RLock
	b.RLock()
	room, ok := b.rooms[ev.Room]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room))
	for _, c := range room {
		clients = append(clients, c)
	}
	b.RUnlock()

	// deliver to clients without holding lock
	for _, c := range clients {
		if c.SafeSend(ev, sendTimeout) {
			continue
		}
		if c.IsClosed() {
			continue
		}
		h.logger.Warn("egress full",
			zap.String("client_id", c.ID),
			zap.String("room", ev.Room),
		)
		if kickOnFull {
			h.remove(c)
		}
	}
}

func getShard(room string) uint32 {
	if room == "" {
		return 0
	}

	h := sha1.Sum([]byte(room))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

func (h *Hub) addClient(c *Client) {
	for _, name := range c.rooms {
		b := h.shards[getShard(name)]
		b.Lock()
		room, ok := b.rooms[name]
		if !ok {
			room = make(map[string]*Client)
			b.rooms[name] = room
		}
		room[c.ID] = c
		b.Unlock()
	}

	h.clientsMu.Lock()
	h.clients[c.ID] = c
	h.clientsMu.Unlock()

	activeConnections.Inc()
}

func (h *Hub) removeClient(c *Client) {
	h.clientsMu.Lock()
	_, known := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.clientsMu.Unlock()

	for _, name := range c.rooms {
		b := h.shards[getShard(name)]
		b.Lock()
		if room, ok := b.rooms[name]; ok {
			delete(room, c.ID)
			if len(room) == 0 {
				delete(b.rooms, name)
			}
		}
		b.Unlock()
	}

	c.Close()
	if known {
		activeConnections.Dec()
		h.logger.Debug("client removed", zap.String("client_id", c.ID), zap.String("user_id", c.UserID()))
	}
}

// remove hands c to the manager loop for removal.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	case <-time.After(unregisterTimeout):
		h.logger.Warn("failed to unregister client: timeout", zap.String("client_id", c.ID))
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Stop closes every connection and waits for the workers. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(h.stop)
}

func (h *Hub) stop() {
	h.cancel()

	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		c.Close()
	}

	h.wg.Wait()
	if h.relay != nil {
		if err := h.relay.Close(); err != nil {
			h.logger.Warn("relay close failed", zap.Error(err))
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	_, wildcard := set["*"]

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades an authenticated request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, role string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(userID, role, conn, h)
}

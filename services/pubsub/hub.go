package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/susahesumudu/mit-erp/core"
	"github.com/susahesumudu/mit-erp/core/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

var ErrHubClosed = errors.New("notification hub closed")

type (
	delivery struct {
		group string
		data  []byte
	}

	countReq struct {
		group string
		resp  chan int
	}

	// Hub owns the live websocket subscribers. All group state is confined to the Run loop.
	Hub struct {
		upgrader websocket.Upgrader
		logger   core.Logger
		relay    notify.Publisher

		register   chan *client
		unregister chan *client
		deliver    chan delivery
		count      chan countReq
		done       chan struct{}
	}
)

var _ notify.Publisher = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		deliver:    make(chan delivery, 256),
		count:      make(chan countReq),
		done:       make(chan struct{}),
	}
	h.relay = h
	return h
}

// SetRelay sets the Publisher inbound client events are re-broadcast through.
// Defaults to the Hub itself; a broker relays across processes.
func (h *Hub) SetRelay(pub notify.Publisher) {
	h.relay = pub
}

// Run processes subscriptions and deliveries until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	groups := make(map[string]map[*client]struct{})

	drop := func(c *client) {
		for _, g := range c.groups {
			if members, ok := groups[g]; ok {
				if _, ok := members[c]; ok {
					delete(members, c)
					if len(members) == 0 {
						delete(groups, g)
					}
				}
			}
		}
	}
	defer func() {
		close(h.done)
		seen := make(map[*client]struct{})
		for _, members := range groups {
			for c := range members {
				if _, ok := seen[c]; !ok {
					seen[c] = struct{}{}
					close(c.send)
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			for _, g := range c.groups {
				members, ok := groups[g]
				if !ok {
					members = make(map[*client]struct{})
					groups[g] = members
				}
				members[c] = struct{}{}
			}

		case c := <-h.unregister:
			if members, ok := groups[c.groups[0]]; ok {
				if _, ok := members[c]; ok {
					drop(c)
					close(c.send)
				}
			}

		case d := <-h.deliver:
			for c := range groups[d.group] {
				select {
				case c.send <- d.data:
				default:
					// slow subscriber
					drop(c)
					close(c.send)
				}
			}

		case req := <-h.count:
			req.resp <- len(groups[req.group])
		}
	}
}

// Publish delivers ev to the clients currently subscribed to group.
func (h *Hub) Publish(ctx context.Context, group string, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	return h.Deliver(ctx, group, data)
}

// Deliver hands an encoded event to the Run loop.
func (h *Hub) Deliver(ctx context.Context, group string, data []byte) error {
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.deliver <- delivery{group: group, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "publishing to %s", group)
	}
}

// Subscribers returns the number of clients currently subscribed to group.
func (h *Hub) Subscribers(group string) int {
	req := countReq{group: group, resp: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.resp
	case <-h.done:
		return 0
	}
}

// ServeWS upgrades an authenticated request and subscribes the connection to the user's
// group and the broadcast group.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}

	c := &client{
		id:     uuid.New().String(),
		userID: userID,
		groups: []string{notify.UserGroup(userID), notify.BroadcastGroup},
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return ErrHubClosed
	}

	go c.writePump()
	go c.readPump()
	return nil
}

type client struct {
	id     string
	userID string
	groups []string // groups[0] is the user's own group
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn(fmt.Sprintf("pubsub.client(%s): %v", c.id, err))
			}
			return
		}

		ev, err := notify.ParseEvent(data)
		if err != nil {
			c.hub.logger.Warn(fmt.Sprintf("pubsub.client(%s): dropping inbound payload: %v", c.id, err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := c.hub.relay.Publish(ctx, c.groups[0], ev); err != nil {
			c.hub.logger.Error(fmt.Sprintf("pubsub.client(%s): re-broadcast: %v", c.id, err), err)
		}
		cancel()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

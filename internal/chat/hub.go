package chat

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"designguard/internal/metrics"
)

// ErrHubClosed is returned by pushes made after the hub stopped.
var ErrHubClosed = errors.New("chat: hub closed")

type membership struct {
	client *Client
	room   string
}

type delivery struct {
	room    string
	userID  int64
	client  *Client
	exclude *Client
	payload []byte
	// reply receives how many connections the payload was queued for.
	reply chan int
}

// Hub is the in-process session registry. All maps are owned by the Run
// goroutine; other goroutines talk to it through channels.
type Hub struct {
	clients map[*Client]bool
	users   map[int64]map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	join       chan membership
	outbound   chan delivery

	done     chan struct{}
	stopOnce sync.Once
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		users:      make(map[int64]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		outbound:   make(chan delivery),
		done:       make(chan struct{}),
		log:        log.Named("hub"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			addTo(h.users, client.UserID, client)
			metrics.Connections.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case m := <-h.join:
			if h.clients[m.client] {
				addTo(h.rooms, m.room, m.client)
			}

		case d := <-h.outbound:
			n := h.deliver(d)
			if d.reply != nil {
				d.reply <- n
			}

		case <-h.done:
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

func addTo[K comparable](m map[K]map[*Client]bool, key K, c *Client) {
	set, ok := m[key]
	if !ok {
		set = make(map[*Client]bool)
		m[key] = set
	}
	set[c] = true
}

func removeFrom[K comparable](m map[K]map[*Client]bool, key K, c *Client) {
	if set, ok := m[key]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	removeFrom(h.users, client.UserID, client)
	for name := range h.rooms {
		removeFrom(h.rooms, name, client)
	}
	close(client.Send)
	metrics.Connections.Dec()
}

func (h *Hub) deliver(d delivery) int {
	var targets map[*Client]bool
	switch {
	case d.client != nil:
		if !h.clients[d.client] {
			return 0
		}
		targets = map[*Client]bool{d.client: true}
	case d.room != "":
		targets = h.rooms[d.room]
	default:
		targets = h.users[d.userID]
	}

	n := 0
	for client := range targets {
		if client == d.exclude {
			continue
		}
		select {
		case client.Send <- d.payload:
			n++
		default:
			h.log.Warn("send buffer full, dropping connection",
				zap.Int64("user_id", client.UserID), zap.String("conn_id", client.ID))
			h.remove(client)
		}
	}
	return n
}

// Stop shuts the hub down and closes every client's send channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) Register(c *Client) error {
	if h.closed() {
		return ErrHubClosed
	}
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join subscribes c to a room channel. Earlier memberships are kept.
func (h *Hub) Join(c *Client, room string) error {
	if h.closed() {
		return ErrHubClosed
	}
	select {
	case h.join <- membership{client: c, room: room}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) push(d delivery) error {
	if h.closed() {
		return ErrHubClosed
	}
	select {
	case h.outbound <- d:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// BroadcastRoom queues payload for every member of room except exclude,
// which may be nil.
func (h *Hub) BroadcastRoom(room string, payload []byte, exclude *Client) error {
	return h.push(delivery{room: room, exclude: exclude, payload: payload})
}

func (h *Hub) SendToClient(c *Client, payload []byte) error {
	return h.push(delivery{client: c, payload: payload})
}

// SendToUser queues payload on every live connection of the user and reports
// how many there were.
func (h *Hub) SendToUser(userID int64, payload []byte) (int, error) {
	reply := make(chan int, 1)
	if err := h.push(delivery{userID: userID, payload: payload, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.done:
		return 0, ErrHubClosed
	}
}

// EmitToUser pushes an event to every live connection of userID on its
// private channel and reports how many connections it reached.
func (h *Hub) EmitToUser(userID int64, event string, data any) (int, error) {
	payload, err := Encode(event, data)
	if err != nil {
		return 0, err
	}
	return h.SendToUser(userID, payload)
}

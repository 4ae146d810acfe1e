// Package stream fans published sweeps out to websocket clients.
//
// Each sweep is encoded to JSON once and offered to every client's
// buffered queue. A client that falls behind loses frames rather than
// stalling the sensor.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/lidarsim/internal/lidar"
	"github.com/banshee-data/lidarsim/internal/monitoring"
)

// Message types.
const (
	TypeSpec  = "spec"
	TypeSweep = "sweep"
)

// Point is the wire form of one return.
type Point struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Radius float64 `json:"r"`
	Laser  int     `json:"laser"`
}

// Spec is the wire form of the sensor specification.
type Spec struct {
	LaserCount     int     `json:"laser_count"`
	RotationRateHz float64 `json:"rotation_rate_hz"`
	AngularStepDeg float64 `json:"angular_step_deg"`
}

// Message is one websocket frame.
type Message struct {
	Type   string  `json:"type"`
	Key    float64 `json:"key,omitempty"`
	Points []Point `json:"points,omitempty"`
	Spec   *Spec   `json:"spec,omitempty"`
}

// Options configures a Hub.
type Options struct {
	QueueSize    int           // frames buffered per client
	WriteTimeout time.Duration // per-frame write deadline
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// Stats counts hub activity.
type Stats struct {
	Clients   int   `json:"clients"`
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1 << 16,
}

// Hub relays a Source's sweeps to websocket clients.
type Hub struct {
	opts Options
	src  lidar.Source

	mu      sync.Mutex
	clients map[string]chan []byte
	closed  bool

	subs      []lidar.Subscription
	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub subscribes to src and returns a hub ready to serve clients.
func NewHub(src lidar.Source, opts Options) *Hub {
	h := &Hub{
		opts:    opts.withDefaults(),
		src:     src,
		clients: make(map[string]chan []byte),
	}
	h.subs = append(h.subs,
		src.Subscribe(h.publishSweep),
		src.OnSpecChanged(h.publishSpec),
	)
	return h
}

func (h *Hub) publishSweep(key float64, batch lidar.ScanBatch) {
	if h.Clients() == 0 {
		return
	}
	msg := Message{Type: TypeSweep, Key: key, Points: make([]Point, len(batch.Points))}
	for i, c := range batch.Points {
		p := c.ToCartesian()
		msg.Points[i] = Point{X: p.X, Y: p.Y, Z: p.Z, Radius: c.Radius(), Laser: c.LaserID()}
	}
	h.broadcast(msg)
}

func (h *Hub) publishSpec(laserCount int, rotationRateHz, angularStepDeg float64) {
	h.broadcast(specMessage(laserCount, rotationRateHz, angularStepDeg))
}

func specMessage(laserCount int, rotationRateHz, angularStepDeg float64) Message {
	return Message{Type: TypeSpec, Spec: &Spec{
		LaserCount:     laserCount,
		RotationRateHz: rotationRateHz,
		AngularStepDeg: angularStepDeg,
	}}
}

func (h *Hub) broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		monitoring.Opsf("stream: encode %s: %v", msg.Type, err)
		return
	}
	h.published.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- payload:
		default:
			// slow client; drop rather than block the sensor
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a client queue. The channel is closed by
// Unsubscribe or Close.
func (h *Hub) Subscribe() (string, <-chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, h.opts.QueueSize)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.clients[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a client queue.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() Stats {
	return Stats{Clients: h.Clients(), Published: h.published.Load(), Dropped: h.dropped.Load()}
}

// Close detaches from the source and disconnects every client.
func (h *Hub) Close() {
	for _, s := range h.subs {
		s.Cancel()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
}

// ServeHTTP upgrades the request and streams frames until the client
// disconnects or the hub closes. The current spec is sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Diagf("stream: upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	id, frames := h.Subscribe()
	defer h.Unsubscribe(id)
	monitoring.Diagf("stream: client %s connected from %s", id, r.RemoteAddr)

	// Reading is required to process control frames; any error means the
	// peer has gone.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	n, rate, step := h.src.Spec()
	if err := h.write(conn, specMessage(n, rate, step)); err != nil {
		return
	}

	for {
		select {
		case payload, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				monitoring.Diagf("stream: client %s write failed: %v", id, err)
				return
			}
		case <-gone:
			monitoring.Diagf("stream: client %s disconnected", id)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	return conn.WriteJSON(msg)
}

// Package observer serves the renderer feed: a loopback-only websocket that streams the loaded
// window and player state, and accepts player input.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/observerproto"
	"sidecraft.ai/internal/sim/encoding"
	"sidecraft.ai/internal/sim/physics"
	"sidecraft.ai/internal/sim/session"
	"sidecraft.ai/internal/sim/world/stream"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

type client struct {
	tickOut chan []byte
	dataOut chan []byte
}

type Server struct {
	world  *store.WorldStore
	boot   observerproto.BootstrapResponse
	inputs chan<- physics.Input
	log    logrus.FieldLogger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
	window  []byte

	encMu   sync.Mutex
	encoded map[int]string
}

// NewServer returns a feed over world. inputs may be nil for a view-only feed.
func NewServer(world *store.WorldStore, boot observerproto.BootstrapResponse, inputs chan<- physics.Input, logger logrus.FieldLogger) *Server {
	boot.ProtocolVersion = observerproto.Version
	return &Server{
		world:  world,
		boot:   boot,
		inputs: inputs,
		log:    logger.WithField("component", "observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
		clients: map[string]*client{},
		encoded: map[int]string{},
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// PublishWindow implements session.Feed.
func (s *Server) PublishWindow(st session.State, f *stream.Frame) {
	b, err := json.Marshal(s.windowMsg(st, f))
	if err != nil {
		s.log.WithError(err).Warn("marshal window")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = b
	for _, c := range s.clients {
		select {
		case c.dataOut <- b:
		default:
			// Slow client; the next WINDOW supersedes this one.
		}
	}
}

// PublishTick implements session.Feed.
func (s *Server) PublishTick(st session.State) {
	b, err := json.Marshal(observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            st.Tick,
		Player:          playerState(st),
	})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		sendLatest(c.tickOut, b)
	}
}

func (s *Server) windowMsg(st session.State, f *stream.Frame) observerproto.WindowMsg {
	msg := observerproto.WindowMsg{
		Type:            observerproto.TypeWindow,
		ProtocolVersion: observerproto.Version,
		Tick:            st.Tick,
		Seq:             f.Seq,
		Lo:              f.Lo,
		Hi:              f.Hi,
		Chunks:          []observerproto.ChunkState{},
		Player:          playerState(st),
	}
	for _, i := range f.Chunks() {
		ch, ok := s.world.Chunk(i)
		if !ok {
			continue
		}
		msg.Chunks = append(msg.Chunks, observerproto.ChunkState{
			Index:      i,
			Solid:      ch.SolidCount(),
			Decorative: ch.DecorativeCount(),
			Encoding:   observerproto.EncodingRLE,
			Data:       s.encodedChunk(ch),
		})
	}
	return msg
}

// Chunks are immutable once sealed, so each one is encoded once.
func (s *Server) encodedChunk(ch *store.Chunk) string {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	if d, ok := s.encoded[ch.Index()]; ok {
		return d
	}
	shape := s.world.Shape()
	d := encoding.EncodeChunk(ch, shape.ChunkWidth, shape.ChunkHeight)
	s.encoded[ch.Index()] = d
	return d
}

func playerState(st session.State) observerproto.PlayerState {
	return observerproto.PlayerState{
		Pos:      [2]float32{st.Pos.X(), st.Pos.Y()},
		Vel:      [2]float32{st.Vel.X(), st.Vel.Y()},
		Chunk:    st.Chunk,
		Facing:   st.Facing.String(),
		Grounded: st.Grounded,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.boot)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		log := s.log.WithField("session", sid)
		defer recoverConn(log, sid)

		c := &client{tickOut: make(chan []byte, 8), dataOut: make(chan []byte, 64)}
		s.mu.Lock()
		if s.window != nil {
			c.dataOut <- s.window
		}
		s.clients[sid] = c
		s.mu.Unlock()
		log.Info("feed subscribed")
		defer func() {
			s.mu.Lock()
			delete(s.clients, sid)
			s.mu.Unlock()
			log.Info("feed closed")
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. WINDOW frames go before pending ticks.
		writeErr := make(chan error, 1)
		go func() {
			write := func(b []byte) error {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				return conn.WriteMessage(websocket.TextMessage, b)
			}
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.dataOut:
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				case b := <-c.tickOut:
					select {
					case w := <-c.dataOut:
						if err := write(w); err != nil {
							writeErr <- err
							return
						}
					default:
					}
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleClientMsg(log, msg)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handleClientMsg(log logrus.FieldLogger, msg []byte) {
	var in observerproto.InputMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		return
	}
	switch in.Type {
	case observerproto.TypeSubscribe:
		// Re-subscribing has nothing to update.
	case observerproto.TypeInput:
		if in.ProtocolVersion != observerproto.Version || in.Dir < -1 || in.Dir > 1 || s.inputs == nil {
			return
		}
		select {
		case s.inputs <- physics.Input{Dir: in.Dir, Jump: in.Jump}:
		default:
			log.Debug("input dropped")
		}
	}
}

func recoverConn(log logrus.FieldLogger, sid string) {
	r := recover()
	if r == nil {
		return
	}
	log.Errorf("feed panic: %v", r)
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("conn_type", "feed")
		scope.SetTag("session", sid)
	})
	hub.Recover(r)
	hub.Flush(2 * time.Second)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

// Live reload connection limits.
const (
	// sendTimeout bounds a single frame write or ping.
	sendTimeout = 10 * time.Second
	// keepAlive is the interval between pings. An unanswered ping drops
	// the page.
	keepAlive   = 30 * time.Second
	// maxInbound caps frames from the page, which never sends data.
	maxInbound  = 512
	// sendQueue is the number of updates buffered per page.
	sendQueue   = 32
)

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	host, ok := s.checkOrigin(r)
	if !ok {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{host}})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &Client{conn: conn, send: make(chan []byte, sendQueue), server: s}
	go c.writePump()
	go c.readPump()

	select {
	case s.register <- c:
	case <-s.hubDone:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// checkOrigin accepts pages served by this server, either through the
// request host or the configured address. It returns the origin host to
// hand to the upgrader.
func (s *PreviewServer) checkOrigin(r *http.Request) (string, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return "", false
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	if !slices.Contains(s.localHosts(r), u.Host) {
		return "", false
	}
	return u.Host, true
}

func (s *PreviewServer) localHosts(r *http.Request) []string {
	port := strconv.Itoa(s.config.Server.Port)
	return []string{r.Host, s.Addr(), "localhost:" + port, "127.0.0.1:" + port}
}

// runWebSocketHub owns the client set. Every mutation happens on this
// goroutine; clientsMutex only guards readers such as ClientCount.
func (s *PreviewServer) runWebSocketHub(ctx context.Context) {
	defer close(s.hubDone)

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.register:
			if c != nil && c.conn != nil {
				s.attach(ctx, c)
			}
		case conn := <-s.unregister:
			if conn != nil {
				s.detach(ctx, conn, websocket.StatusNormalClosure, "")
			}
		case msg := <-s.broadcast:
			for _, conn := range s.fanOut(msg) {
				s.detach(ctx, conn, websocket.StatusPolicyViolation, "client too slow")
			}
		}
	}
}

// attach adds c and greets it with the current bundle version, so a page
// that missed a reload between loading and connecting can catch up.
func (s *PreviewServer) attach(ctx context.Context, c *Client) {
	s.clientsMutex.Lock()
	s.clients[c.conn] = c
	n := len(s.clients)
	s.clientsMutex.Unlock()

	_, _, version, _ := s.snapshot()
	if hello, err := json.Marshal(UpdateMessage{Type: MessageHello, Version: version, Timestamp: time.Now()}); err == nil {
		c.send <- hello
	}
	s.logger.Debug(ctx, "page connected", "clients", n, "version", version)
}

// detach forgets conn and closes it with the given status. Unknown
// connections are ignored.
func (s *PreviewServer) detach(ctx context.Context, conn *websocket.Conn, status websocket.StatusCode, reason string) {
	s.clientsMutex.Lock()
	c, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
	}
	n := len(s.clients)
	s.clientsMutex.Unlock()
	if !ok {
		return
	}

	close(c.send)
	conn.Close(status, reason)
	s.logger.Debug(ctx, "page disconnected", "clients", n, "status", int(status))
}

// fanOut queues msg for every client and returns those whose queue is full.
func (s *PreviewServer) fanOut(msg []byte) []*websocket.Conn {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	var slow []*websocket.Conn
	for conn, c := range s.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, conn)
		}
	}
	return slow
}

// readPump keeps control frames flowing and reports the page gone once
// the connection ends.
func (c *Client) readPump() {
	ctx := context.Background()
	c.conn.SetReadLimit(maxInbound)

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				c.server.logger.Debug(ctx, "websocket read ended", "error", err.Error())
			}
			break
		}
	}

	select {
	case c.server.unregister <- c.conn:
	case <-c.server.hubDone:
	}
}

// writePump delivers queued updates and pings the page until the queue is
// closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			err = c.withTimeout(ctx, func(ctx context.Context) error {
				return c.conn.Write(ctx, websocket.MessageText, msg)
			})
		case <-ticker.C:
			err = c.withTimeout(ctx, c.conn.Ping)
		}
		if err != nil {
			c.server.logger.Debug(ctx, "websocket write failed", "error", err.Error())
			return
		}
	}
}

func (c *Client) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return fn(ctx)
}

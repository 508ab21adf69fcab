package gateway

import (
	"net/http"
	"time"

	"github.com/campuskit/campus/pkg/bus"
	"github.com/campuskit/campus/pkg/plugin"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// streamTopics are the platform events forwarded to admin stream clients.
var streamTopics = []string{
	plugin.TopicPluginInstalled,
	plugin.TopicPluginEnabled,
	plugin.TopicPluginDisabled,
}

const streamBuffer = 64

// streamClient is one connected websocket subscriber, bound to a tenant.
type streamClient struct {
	id     string
	conn   *websocket.Conn
	send   chan bus.Event
	done   chan struct{}
	subs   []*bus.Subscription
	closed bool
}

func (c *streamClient) close() {
	if c.closed {
		return
	}
	c.closed = true
	for _, sub := range c.subs {
		sub.Cancel()
	}
	close(c.done)
	_ = c.conn.Close()
}

// handleEvents upgrades the connection and forwards the tenant's platform
// events until the client disconnects. A slow client drops events rather
// than stalling the publisher: the bus is best-effort by contract.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		id = time.Now().Format("20060102150405.000")
	}

	client := &streamClient{
		id:   id,
		conn: conn,
		send: make(chan bus.Event, streamBuffer),
		done: make(chan struct{}),
	}

	for _, topic := range streamTopics {
		sub := s.eventBus.Subscribe(topic, tenantID, func(event bus.Event) {
			select {
			case client.send <- event:
			default:
				if s.metrics != nil {
					s.metrics.EventsDroppedTotal.Inc()
				}
				s.logger.Warn().
					Str("client", client.id).
					Str("topic", event.Topic).
					Msg("Stream client too slow, dropping event")
			}
		})
		client.subs = append(client.subs, sub)
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.StreamClientsActive.Inc()
	}

	s.logger.Info().
		Str("client", client.id).
		Str("tenant", tenantID).
		Msg("Stream client connected")

	go s.writeLoop(client)
	s.readLoop(client)

	s.mu.Lock()
	client.close()
	delete(s.clients, client.id)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.StreamClientsActive.Dec()
	}

	s.logger.Info().Str("client", client.id).Msg("Stream client disconnected")
}

func (s *Server) writeLoop(client *streamClient) {
	for {
		select {
		case event := <-client.send:
			if err := client.conn.WriteJSON(event); err != nil {
				s.logger.Debug().
					Err(err).
					Str("client", client.id).
					Msg("Failed to write to stream client")
				return
			}
		case <-client.done:
			return
		}
	}
}

// readLoop drains the connection so close frames are processed; clients
// are not expected to send anything.
func (s *Server) readLoop(client *streamClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultPingInterval = 30 * time.Second
	writeTimeout        = 5 * time.Second
	readLimit           = 4096
)

// SummaryStream pushes the current summary to each WebSocket client, then
// every update published on the feed
type SummaryStream struct {
	feed         SummaryFeed
	source       SummarySource
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	logger       *logrus.Entry
}

func NewSummaryStream(feed SummaryFeed, source SummarySource, pingInterval time.Duration, origins []string, logger *logrus.Entry) *SummaryStream {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &SummaryStream{
		feed:         feed,
		source:       source,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
		logger: logger,
	}
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(allowed) == 0 || origin == "" || allowed[origin]
	}
}

// Serve upgrades the request and relays summaries until either side goes away
func (s *SummaryStream) Serve(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates, err := s.feed.Subscribe(ctx)
	if err != nil {
		s.logger.Errorf("Failed to subscribe to summary updates: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summary updates unavailable"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the error response
		s.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log := s.logger.WithField("remote", c.ClientIP())
	log.Info("Summary subscriber connected")

	go s.readLoop(conn, cancel)

	if err := s.write(conn, s.source.Current()); err != nil {
		log.Debugf("Initial summary write failed: %v", err)
		return
	}

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			log.Info("Summary subscriber disconnected")
			return

		case summary, ok := <-updates:
			if !ok {
				cancel()
				continue
			}
			if err := s.write(conn, summary); err != nil {
				log.Debugf("Summary write failed: %v", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debugf("Ping failed: %v", err)
				return
			}
		}
	}
}

func (s *SummaryStream) write(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// readLoop discards client frames and cancels the stream once the client
// stops answering pings or closes
func (s *SummaryStream) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(s.pingInterval * 2))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pingInterval * 2))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

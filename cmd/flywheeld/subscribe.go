package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/overcast-systems/flywheel/client"
)

const (
	pingInterval    = 15 * time.Second
	pingPongTimeout = 10 * time.Second

	// messages buffered per subscriber before drops start
	subscriberBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  10 << 10,
	WriteBufferSize: 10 << 10,
}

// streamedMessage is the JSON frame sent to websocket subscribers.
type streamedMessage struct {
	Channel    string    `json:"channel"`
	Payload    any       `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// handleSubscribe streams messages published on a channel to the client
// over a WebSocket. Messaging is a connected-only capability, so the
// endpoint refuses new subscribers while degraded rather than holding open
// a connection that can never deliver.
func (srv *Server) handleSubscribe(c echo.Context) error {
	channel := c.Param("channel")

	if srv.client.Mode() != client.ModeConnected {
		return c.JSON(http.StatusServiceUnavailable, GenericError{
			Error:   "MessagingUnavailable",
			Message: "subscriptions need a connected remote store, try again later",
		})
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrading websocket: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	// A slow reader only loses its own messages: the handler buffers a
	// bounded number of frames and drops beyond that.
	msgs := make(chan streamedMessage, subscriberBuffer)
	unsubscribe, err := srv.client.Subscribe(ctx, channel, func(ch string, payload any) {
		select {
		case msgs <- streamedMessage{Channel: ch, Payload: payload, ReceivedAt: time.Now().UTC()}:
		default:
			wsMessagesDropped.Inc()
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	wsSubscribers.Inc()
	defer wsSubscribers.Dec()

	srv.logger.Info("new subscriber",
		"channel", channel,
		"remote_addr", c.RealIP(),
		"user_agent", c.Request().UserAgent(),
	)

	// client pings get a pong; a close-sent or timed-out reply just means
	// the connection is already going away
	conn.SetPingHandler(func(message string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(pingPongTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil
		}
		return err
	})

	// subscribers never send data frames, so a read error is the
	// disconnect signal
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	// keepalive: ping whenever the stream has been quiet for a full
	// interval, and tear the handler down once a control write fails
	sentMu := sync.Mutex{}
	lastSent := time.Now()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sentMu.Lock()
				last := lastSent
				sentMu.Unlock()
				if time.Since(last) < pingInterval {
					continue
				}
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(pingPongTimeout)); err != nil {
					srv.logger.Info("failed to ping subscriber", "err", err)
					cancel()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-srv.shutdown:
			closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)) //nolint:errcheck
			return nil
		case msg := <-msgs:
			if err := conn.WriteJSON(msg); err != nil {
				srv.logger.Debug("failed to write message", "err", err)
				return nil
			}
			wsMessagesSent.Inc()

			sentMu.Lock()
			lastSent = time.Now()
			sentMu.Unlock()
		}
	}
}

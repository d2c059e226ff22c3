package client

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/overcast-systems/flywheel/store"
)

// MessageHandler receives decoded messages delivered on a subscribed
// channel. Handlers for one channel run in registration order, on the
// single dispatch goroutine, so a slow handler delays the ones after it.
type MessageHandler func(channel string, payload any)

type subscription struct {
	id      uint64
	handler MessageHandler
}

// Publish broadcasts msg on the named channel and returns the number of
// subscribers that received it. While not connected this is a documented
// no-op: the message is dropped, the count is zero, and no error is
// returned. Messaging is a connected-only capability with no fallback
// delivery.
func (c *Client) Publish(ctx context.Context, channel string, msg any) (int64, error) {
	if c.Mode() != ModeConnected {
		droppedPublishes.Inc()
		c.logger.Debug("publish dropped while not connected", "channel", channel)
		return 0, nil
	}
	payload, err := store.Encode(msg)
	if err != nil {
		return 0, err
	}
	n, err := c.pub.Publish(ctx, channel, payload).Result()
	if err != nil && isReadOnlyErr(err) {
		n, err = c.pub.Publish(ctx, channel, payload).Result()
	}
	if err != nil {
		c.degrade("publish", err)
		droppedPublishes.Inc()
		return 0, nil
	}
	return n, nil
}

// Subscribe registers handler for messages on the named channel and returns
// a cleanup func that removes the registration. Subscribing while not
// connected registers nothing and returns a no-op cleanup; the capability
// loss is logged, not surfaced as an error.
//
// Registrations survive a degrade: after a successful reconnect the client
// resubscribes every channel that still has handlers.
func (c *Client) Subscribe(ctx context.Context, channel string, handler MessageHandler) (func(), error) {
	if c.Mode() != ModeConnected {
		c.logger.Warn("subscribe unavailable while not connected, handler not registered",
			"channel", channel)
		return func() {}, nil
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	c.handlers[channel] = append(c.handlers[channel], &subscription{id: id, handler: handler})

	if c.pubsub == nil {
		ps := c.sub.Subscribe(ctx, channel)
		c.pubsub = ps
		go c.dispatchLoop(ps)
	} else if len(c.handlers[channel]) == 1 {
		if err := c.pubsub.Subscribe(ctx, channel); err != nil {
			c.removeLocked(channel, id)
			c.degrade("subscribe", err)
			return func() {}, nil
		}
	}
	return func() { c.unsubscribe(channel, id) }, nil
}

func (c *Client) unsubscribe(channel string, id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if !c.removeLocked(channel, id) {
		return
	}
	if c.pubsub == nil {
		return
	}
	if len(c.handlers[channel]) == 0 {
		delete(c.handlers, channel)
		if err := c.pubsub.Unsubscribe(context.Background(), channel); err != nil {
			c.logger.Debug("channel unsubscribe failed", "channel", channel, "err", err)
		}
	}
	if len(c.handlers) == 0 {
		_ = c.pubsub.Close()
		c.pubsub = nil
	}
}

// removeLocked drops the registration with the given id, reporting whether
// it was present. Callers hold subMu.
func (c *Client) removeLocked(channel string, id uint64) bool {
	subs := c.handlers[channel]
	for i, s := range subs {
		if s.id == id {
			c.handlers[channel] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// dispatchLoop fans received messages out to the registered handlers. One
// loop runs per PubSub connection; it exits when the connection is closed.
// Messages that arrive while the client is degraded are dropped so callers
// see the same silence a local publish gets.
func (c *Client) dispatchLoop(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		if c.Mode() != ModeConnected {
			droppedDeliveries.Inc()
			continue
		}
		payload := store.Decode(msg.Payload)
		for _, h := range c.handlersFor(msg.Channel) {
			c.safeInvoke(h, msg.Channel, payload)
		}
	}
}

func (c *Client) handlersFor(channel string) []MessageHandler {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	subs := c.handlers[channel]
	if len(subs) == 0 {
		return nil
	}
	out := make([]MessageHandler, len(subs))
	for i, s := range subs {
		out[i] = s.handler
	}
	return out
}

// safeInvoke keeps a panicking handler from killing the dispatch loop.
func (c *Client) safeInvoke(h MessageHandler, channel string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked", "channel", channel, "panic", r)
		}
	}()
	h(channel, payload)
}

// stopSubscriber closes the active PubSub connection, ending its dispatch
// loop. Handler registrations are kept so a reconnect can restore them.
func (c *Client) stopSubscriber() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.pubsub != nil {
		_ = c.pubsub.Close()
		c.pubsub = nil
	}
}

// resubscribe restores channel subscriptions after a reconnect. Called from
// Connect with the connection lock held.
func (c *Client) resubscribe(ctx context.Context) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if len(c.handlers) == 0 {
		return
	}
	channels := make([]string, 0, len(c.handlers))
	for ch := range c.handlers {
		channels = append(channels, ch)
	}
	ps := c.sub.Subscribe(ctx, channels...)
	c.pubsub = ps
	go c.dispatchLoop(ps)
	c.logger.Info("resubscribed channels after reconnect", "channels", len(channels))
}

// Package websocket relays state broadcasts between processes over
// github.com/gorilla/websocket. A Hub serves named rooms at
// /channel/{name}; Dial connects a domain.Channel to one room and keeps
// reconnecting until closed. Every frame is binary. An empty frame is a ping.
package websocket

import "time"

const DefaultSendBufferSize = 32

type Settings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	SendBufferSize   int
}

func DefaultSettings() *Settings {
	pingTimeout := 1 * time.Second
	return &Settings{
		HandshakeTimeout: 2 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		PingTimeout:      pingTimeout,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      15 * time.Second,
		SendBufferSize:   DefaultSendBufferSize,
	}
}

func (s *Settings) withDefaults() *Settings {
	defaults := DefaultSettings()
	if s == nil {
		return defaults
	}
	out := *s
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if out.ReconnectTimeout <= 0 {
		out.ReconnectTimeout = defaults.ReconnectTimeout
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = defaults.PingTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = defaults.ReadTimeout
	}
	if out.SendBufferSize <= 0 {
		out.SendBufferSize = defaults.SendBufferSize
	}
	return &out
}

// reconnect paces connection attempts: After fires once timeout has passed
// since the attempt started.
type reconnect struct {
	start   time.Time
	timeout time.Duration
}

func newReconnect(timeout time.Duration) *reconnect {
	return &reconnect{start: time.Now(), timeout: timeout}
}

func (r *reconnect) After() <-chan time.Time {
	wait := r.timeout - time.Since(r.start)
	if wait < 0 {
		wait = 0
	}
	return time.After(wait)
}

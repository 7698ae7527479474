/*
 * Copyright (c) 2025, FleetForge Software (https://fleetforge.io).
 *
 * FleetForge Software licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package transport

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetforge/telemetry-agent/pkg/config"
)

// Conn is the subset of a websocket connection the client needs. The
// production implementation wraps a gorilla connection; tests substitute a
// scripted fake.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the connection dies.
	ReadMessage() (messageType int, data []byte, err error)
	// WriteMessage writes one frame. Implementations must be safe for
	// concurrent writers.
	WriteMessage(messageType int, data []byte) error
	// WriteControl writes a control frame with a write deadline.
	WriteControl(messageType int, data []byte, deadline time.Time) error
	// Close tears down the underlying socket.
	Close() error
}

// Dialer establishes stream connections.
type Dialer interface {
	Dial(address string, header http.Header) (Conn, error)
}

// wsConn wraps a gorilla connection with a write lock and a per-write
// deadline. Gorilla permits only one concurrent writer; the heartbeat loop
// and Send both write, so the lock is required.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (w *wsConn) ReadMessage() (int, []byte, error) {
	return w.conn.ReadMessage()
}

func (w *wsConn) WriteMessage(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	return w.conn.WriteMessage(messageType, data)
}

func (w *wsConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return w.conn.WriteControl(messageType, data, deadline)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// wsDialer dials stream endpoints using the configured handshake timeout
// and TLS settings.
type wsDialer struct {
	cfg *config.StreamConfig
}

// NewDialer builds the production websocket dialer for the given stream
// configuration.
func NewDialer(cfg *config.StreamConfig) Dialer {
	return &wsDialer{cfg: cfg}
}

func (d *wsDialer) Dial(address string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: d.cfg.InsecureSkipVerify,
		},
	}
	conn, resp, err := dialer.Dial(address, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn, writeTimeout: d.cfg.WriteTimeout}, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestTCPDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.Write([]byte{0xF7, 0x0E})
		buf := make([]byte, 3)
		if _, err := io.ReadFull(c, buf); err == nil {
			received <- buf
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	conn, info, err := TCPDialer("127.0.0.1", addr.Port)(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if !strings.Contains(info, strconv.Itoa(addr.Port)) {
		t.Errorf("info = %q", info)
	}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil || !bytes.Equal(buf, []byte{0xF7, 0x0E}) {
		t.Fatalf("read % X, %v", buf, err)
	}
	if _, err := conn.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := <-received; !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("server received % X", got)
	}
}

func TestDialTCP_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if _, err := DialTCP(context.Background(), "127.0.0.1", port); err == nil {
		t.Error("dial to a closed port should fail")
	}
}

func TestDialTCP_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DialTCP(ctx, "127.0.0.1", 1); err == nil {
		t.Error("cancelled dial should fail")
	}
}

func TestOpenSerial_Missing(t *testing.T) {
	if _, err := OpenSerial("/dev/does-not-exist-wallbus", 9600); err == nil {
		t.Error("opening a missing port should fail")
	}
}

// newRelay starts a WebSocket relay that sends frames and echoes binary
// messages back
func newRelay(t *testing.T, user, pass string, send [][]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			want := "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
			if r.Header.Get("Authorization") != want {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		c.WriteMessage(websocket.TextMessage, []byte("hello"))
		for _, m := range send {
			c.WriteMessage(websocket.BinaryMessage, m)
		}
		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			c.WriteMessage(mt, data)
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebSocket_ReadAcrossMessages(t *testing.T) {
	srv := newRelay(t, "", "", [][]byte{{0xF7, 0x0E, 0x10}, {0x81, 0x00}})
	defer srv.Close()

	conn, err := OpenWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("OpenWebSocket: %v", err)
	}
	defer conn.Close()

	// Small reads split the first message; the text message is skipped
	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, []byte{0xF7, 0x0E, 0x10, 0x81, 0x00}) {
		t.Errorf("read % X", buf)
	}

	if _, err := conn.Write([]byte{0xAA}); err != nil {
		t.Fatalf("write: %v", err)
	}
	one := make([]byte, 1)
	if _, err := io.ReadFull(conn, one); err != nil || one[0] != 0xAA {
		t.Errorf("echo % X, %v", one, err)
	}
}

func TestWebSocket_BasicAuth(t *testing.T) {
	srv := newRelay(t, "admin", "secret", nil)
	defer srv.Close()

	dial := WebSocketDialer(WebSocketOptions{URL: wsURL(srv), Username: "admin", Password: "secret"})
	conn, info, err := dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
	if !strings.HasPrefix(info, "WebSocket: ") {
		t.Errorf("info = %q", info)
	}

	_, err = OpenWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv), Username: "admin", Password: "wrong"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("bad password: err = %v, want HTTP 401", err)
	}
}

func TestWebSocket_ClosedAfterError(t *testing.T) {
	srv := newRelay(t, "", "", nil)
	conn, err := OpenWebSocket(context.Background(), WebSocketOptions{URL: wsURL(srv)})
	if err != nil {
		t.Fatalf("OpenWebSocket: %v", err)
	}
	conn.Close()
	srv.Close()

	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("read on a closed connection should fail")
	}
	if _, err := conn.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("second read err = %v, want ErrConnectionClosed", err)
	}
}

func TestOpenWebSocket_BadScheme(t *testing.T) {
	_, err := OpenWebSocket(context.Background(), WebSocketOptions{URL: "http://example.com"})
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Errorf("err = %v", err)
	}
}

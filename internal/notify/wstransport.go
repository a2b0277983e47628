package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chronikcache/chronikcache/internal/domain"
)

// WSTransport is the default domain.Subscription implementation: one
// websocket connection to the indexer's push endpoint, shared by both
// namespaces, with a read pump and reconnect loop.
type WSTransport struct {
	url string

	mu       sync.Mutex
	conn     *websocket.Conn
	open     chan struct{}
	onMsg    func(domain.Namespace, string, domain.TxEvent)
	onConn   func()
	onRecon  func()
	onErr    func(error)
	onEndFn  func()
	closed   bool
}

type wireMessage struct {
	Type      string `json:"type"`
	MsgType   string `json:"msgType"`
	Txid      string `json:"txid"`
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

// NewWSTransport dials url and starts the read/reconnect pumps.
func NewWSTransport(url string) *WSTransport {
	t := &WSTransport{url: url, open: make(chan struct{})}
	go t.connectLoop()
	return t
}

func (t *WSTransport) connectLoop() {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
		if err != nil {
			if t.onErr != nil {
				t.onErr(fmt.Errorf("notify: dial %s: %w", t.url, err))
			}
			time.Sleep(time.Second)
			continue
		}

		t.mu.Lock()
		first := t.conn == nil
		t.conn = conn
		t.mu.Unlock()

		select {
		case <-t.open:
		default:
			close(t.open)
		}

		if first {
			if t.onConn != nil {
				t.onConn()
			}
		} else if t.onRecon != nil {
			t.onRecon()
		}

		t.readPump(conn)

		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
	}
}

func (t *WSTransport) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.onErr != nil {
				t.onErr(err)
			}
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "Tx" {
			continue
		}
		if t.onMsg != nil {
			t.onMsg(domain.Namespace(msg.Namespace), msg.ID, domain.TxEvent{
				MsgType: domain.MsgType(msg.MsgType),
				Txid:    msg.Txid,
			})
		}
	}
}

func (t *WSTransport) send(v any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("notify: not connected")
	}
	return conn.WriteJSON(v)
}

func (t *WSTransport) Subscribe(_ context.Context, namespace domain.Namespace, id string) error {
	return t.send(map[string]string{"action": "subscribe", "namespace": string(namespace), "id": id})
}

func (t *WSTransport) Unsubscribe(_ context.Context, namespace domain.Namespace, id string) error {
	return t.send(map[string]string{"action": "unsubscribe", "namespace": string(namespace), "id": id})
}

func (t *WSTransport) OnMessage(f func(domain.Namespace, string, domain.TxEvent)) { t.onMsg = f }
func (t *WSTransport) OnConnect(f func())                                        { t.onConn = f }
func (t *WSTransport) OnReconnect(f func())                                      { t.onRecon = f }
func (t *WSTransport) OnError(f func(error))                                     { t.onErr = f }
func (t *WSTransport) OnEnd(f func())                                            { t.onEndFn = f }

func (t *WSTransport) WaitForOpen(ctx context.Context) error {
	select {
	case <-t.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if t.onEndFn != nil {
		t.onEndFn()
	}
	return nil
}

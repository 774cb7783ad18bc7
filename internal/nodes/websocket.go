package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// webSocketOut writes messages to a websocket server as a client,
	// either the payload alone or the whole message as JSON
	webSocketOut struct {
		URL      string `json:"url"`
		WholeMsg text   `json:"wholemsg"`

		dialer *websocket.Dialer
		queue  *ioQueue
		conn   *websocket.Conn
	}

	frame struct {
		kind int
		data []byte
	}
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

var ErrNoURL = errors.New("websocket url is required")

func (o Options) newWebSocketOut(
	_ *engine.Node, cfg *api.NodeConfig,
) (engine.Handler, error) {
	h := &webSocketOut{dialer: o.Dialer}
	if err := cfg.Decode(h); err != nil {
		return nil, err
	}
	if h.URL == "" {
		return nil, ErrNoURL
	}
	h.queue = newIOQueue()
	return h, nil
}

func (h *webSocketOut) Start(n *engine.Node) {
	h.queue.enqueue(func() {
		if err := h.connect(n); err != nil {
			n.Warn("Websocket connection failed", "error", err.Error())
		}
	})
}

func (h *webSocketOut) Receive(
	n *engine.Node, msg api.Msg, done engine.Done,
) {
	f, err := h.frame(msg)
	if err != nil {
		done(err)
		return
	}
	h.queue.submit(n, done, func() ([]api.Msg, error) {
		if h.conn == nil {
			if err := h.connect(n); err != nil {
				return nil, err
			}
		}
		_ = h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := h.conn.WriteMessage(f.kind, f.data); err != nil {
			h.disconnect(n)
			return nil, err
		}
		return nil, nil
	})
}

func (h *webSocketOut) frame(msg api.Msg) (frame, error) {
	if h.WholeMsg == "true" {
		data, err := api.EncodeMsg(msg)
		return frame{kind: websocket.TextMessage, data: data}, err
	}
	switch p := msg.Payload().(type) {
	case []byte:
		return frame{kind: websocket.BinaryMessage, data: p}, nil
	case string:
		return frame{kind: websocket.TextMessage, data: []byte(p)}, nil
	default:
		data, err := api.EncodeValue(p)
		return frame{kind: websocket.TextMessage, data: data}, err
	}
}

// connect runs on the I/O worker, which owns the connection
func (h *webSocketOut) connect(n *engine.Node) error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, _, err := h.dialer.DialContext(ctx, h.URL, nil)
	if err != nil {
		h.report(n, api.Status{
			Fill: api.FillRed, Shape: api.ShapeRing, Text: "disconnected",
		})
		return err
	}
	h.conn = conn
	h.report(n, api.Status{
		Fill: api.FillGreen, Shape: api.ShapeDot, Text: "connected",
	})
	return nil
}

func (h *webSocketOut) disconnect(n *engine.Node) {
	_ = h.conn.Close()
	h.conn = nil
	h.report(n, api.Status{
		Fill: api.FillRed, Shape: api.ShapeRing, Text: "disconnected",
	})
}

func (h *webSocketOut) report(n *engine.Node, s api.Status) {
	n.Post(func() {
		n.Status(s)
	})
}

func (h *webSocketOut) Close(*engine.Node) error {
	h.queue.drain()
	if h.conn == nil {
		return nil
	}
	_ = h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := h.conn.Close()
	h.conn = nil
	return err
}

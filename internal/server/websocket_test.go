package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/pkg/api"
)

const readTimeout = 5 * time.Second

func dialComms(t *testing.T, s *testServer, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/comms" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var res T
	require.NoError(t, conn.ReadJSON(&res))
	return res
}

func TestCommsStreamsSubscribedTopics(t *testing.T) {
	s := newTestServer(t, "")
	rev := decode[api.DeployResponse](t, s.do(http.MethodPost, "/flows",
		[]byte(`[
			{"id":"tab","type":"tab"},
			{"id":"dbg","type":"debug","z":"tab"}
		]`),
	)).Rev
	s.Idle()

	conn := dialComms(t, s, "")
	require.NoError(t, conn.WriteJSON(api.SubscribeRequest{
		Type: api.SubscribeType, Topics: []string{events.TopicDebug},
	}))
	ack := readJSON[api.SubscribedResult](t, conn)
	assert.Equal(t, api.SubscribedType, ack.Type)
	assert.Equal(t, []string{events.TopicDebug}, ack.Topics)
	assert.Equal(t, rev, ack.Rev)

	s.Send("dbg", api.NewMsg("streamed"))

	ev := readJSON[api.Event](t, conn)
	assert.Equal(t, api.EventTypeDebug, ev.Type)
	assert.Equal(t, events.TopicDebug, ev.Topic)
	assert.Contains(t, string(ev.Data), "streamed")
}

func TestCommsRequiresToken(t *testing.T) {
	s := newTestServer(t, "secret")
	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/comms"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn := dialComms(t, s, "?access_token=secret")
	require.NoError(t, conn.WriteJSON(api.SubscribeRequest{
		Type: api.SubscribeType,
	}))
	ack := readJSON[api.SubscribedResult](t, conn)
	assert.Equal(t, api.SubscribedType, ack.Type)
}

func TestCloseWebSockets(t *testing.T) {
	s := newTestServer(t, "")
	conn := dialComms(t, s, "")
	require.NoError(t, conn.WriteJSON(api.SubscribeRequest{
		Type: api.SubscribeType,
	}))
	readJSON[api.SubscribedResult](t, conn)

	s.Server.CloseWebSockets()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

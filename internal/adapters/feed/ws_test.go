package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/autotrader/internal/adapters/feed"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// serve escribe los mensajes dados y cierra la conexión.
func serve(t *testing.T, messages ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		conns.Add(1)
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
	}))
	return srv, &conns
}

func collect(t *testing.T, out <-chan domain.PairEvent, n int) []domain.PairEvent {
	t.Helper()
	var got []domain.PairEvent
	timeout := time.After(3 * time.Second)
	for len(got) < n {
		select {
		case ev := <-out:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events: got %d of %d", len(got), n)
		}
	}
	return got
}

func TestWSFeed_DecodesSingleAndBatch(t *testing.T) {
	srv, _ := serve(t,
		`{"pair":"0xAAA","venue":"v2","base_symbol":"PEPE","quote_symbol":"WBNB","price":1.5,"liquidity_usd":2500,"buys":4}`,
		`not json`,
		`[{"pair":"b","venue":"fm","price":0.1},{"pair":"c","venue":"v3","price":2}]`,
	)
	defer srv.Close()

	f := feed.New(feed.Config{URL: wsURL(srv), ReconnectMin: 10 * time.Millisecond, ReconnectMax: 20 * time.Millisecond})
	out := make(chan domain.PairEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, out) }()

	got := collect(t, out, 3)
	cancel()
	assert.NoError(t, <-done)

	assert.Equal(t, "0xAAA", got[0].PairKey)
	assert.Equal(t, domain.VenueV2, got[0].Venue)
	require.NotNil(t, got[0].Liquidity)
	assert.Equal(t, 2500.0, *got[0].Liquidity)
	assert.Equal(t, 4, got[0].BuyCount)
	assert.False(t, got[0].ReceivedAt.IsZero())

	assert.Equal(t, domain.VenueFourMeme, got[1].Venue)
	assert.Nil(t, got[1].Liquidity)
	assert.Equal(t, "c", got[2].PairKey)

	_, dropped := f.Stats()
	assert.GreaterOrEqual(t, dropped, int64(1))
}

func TestWSFeed_ReconnectsAfterDisconnect(t *testing.T) {
	srv, conns := serve(t, `{"pair":"a","venue":"v2","price":1}`)
	defer srv.Close()

	f := feed.New(feed.Config{URL: wsURL(srv), ReconnectMin: 5 * time.Millisecond, ReconnectMax: 10 * time.Millisecond})
	out := make(chan domain.PairEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx, out) }()

	collect(t, out, 3)
	assert.GreaterOrEqual(t, conns.Load(), int32(3))
}

func TestWSFeed_RequiresURL(t *testing.T) {
	err := feed.New(feed.Config{}).Run(context.Background(), make(chan domain.PairEvent))
	assert.Error(t, err)
}

func TestWSFeed_StopsWhileDialFails(t *testing.T) {
	f := feed.New(feed.Config{URL: "ws://127.0.0.1:1", ReconnectMin: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, f.Run(ctx, make(chan domain.PairEvent)))
}

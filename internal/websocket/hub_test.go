package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) scraper.RunEvent {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var e scraper.RunEvent
		require.NoError(t, json.Unmarshal(data, &e))
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return scraper.RunEvent{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitSubscribers(t *testing.T, hub *Hub, site string, n int) {
	t.Helper()
	assert.Eventually(t, func() bool { return hub.Subscribers(site) == n }, time.Second, 5*time.Millisecond)
}

func TestHub_RoutesEventsBySite(t *testing.T) {
	hub := startHub(t)

	alpha := NewClient(hub, nil, "alice", "alpha")
	all := NewClient(hub, nil, "bob", AllSites)
	hub.Register(alpha)
	hub.Register(all)
	waitSubscribers(t, hub, "alpha", 1)
	waitSubscribers(t, hub, AllSites, 1)

	hub.OnEvent(scraper.RunEvent{Type: scraper.EventRunStarted, Site: "alpha", RunID: "r1"})
	assert.Equal(t, "r1", receive(t, alpha).RunID)
	assert.Equal(t, "alpha", receive(t, all).Site)

	hub.OnEvent(scraper.RunEvent{Type: scraper.EventRunStarted, Site: "beta", RunID: "r2"})
	assert.Equal(t, "r2", receive(t, all).RunID)
	assertSilent(t, alpha)
}

func TestHub_SubscribeMessages(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub, nil, "alice")
	hub.Register(client)
	assert.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[client]
	}, time.Second, 5*time.Millisecond)

	hub.HandleClientMessage(client, []byte(`{"type":"subscribe","site":"beta"}`))
	assert.Equal(t, 1, hub.Subscribers("beta"))

	hub.OnEvent(scraper.RunEvent{Type: scraper.EventItemDone, Site: "beta", URL: "https://beta.test/p/1"})
	assert.Equal(t, "https://beta.test/p/1", receive(t, client).URL)

	hub.HandleClientMessage(client, []byte(`{"type":"unsubscribe","site":"beta"}`))
	assert.Equal(t, 0, hub.Subscribers("beta"))

	hub.OnEvent(scraper.RunEvent{Type: scraper.EventItemDone, Site: "beta"})
	assertSilent(t, client)

	// garbage is ignored
	hub.HandleClientMessage(client, []byte(`not json`))
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub, nil, "alice", "alpha")
	hub.Register(client)
	waitSubscribers(t, hub, "alpha", 1)

	hub.Unregister(client)
	waitSubscribers(t, hub, "alpha", 0)

	_, ok := <-client.Send
	assert.False(t, ok)
}

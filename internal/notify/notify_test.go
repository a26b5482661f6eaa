package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var a, b []Message
	unsubA := bus.Subscribe("mods", func(_ context.Context, m Message) { a = append(a, m) })
	bus.Subscribe("mods", func(_ context.Context, m Message) { b = append(b, m) })
	bus.Subscribe("other", func(context.Context, Message) { t.Fatal("wrong topic") })

	require.NoError(t, bus.Publish(ctx, "mods", Message{Type: TypeUpdated, Origin: "x"}))
	unsubA()
	unsubA()
	require.NoError(t, bus.Publish(ctx, "mods", Message{Type: TypeCardsUpdated, Archetype: "Blue-Eyes"}))

	assert.Equal(t, []Message{{Type: TypeUpdated, Origin: "x"}}, a)
	assert.Len(t, b, 2)
	assert.Equal(t, "Blue-Eyes", b[1].Archetype)

	assert.NoError(t, NopBus().Publish(ctx, "mods", Message{Type: TypeUpdated}))
}

func TestHubForwardsToTabs(t *testing.T) {
	bus := NewMemoryBus()
	hub := NewHub(bus, "mods")
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "mods", Message{Type: TypeCardsUpdated, Archetype: "Branded"}))
	require.NoError(t, bus.Publish(context.Background(), "elsewhere", Message{Type: TypeUpdated}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, Message{Type: TypeCardsUpdated, Archetype: "Branded"}, got)

	hub.Close()
	assert.Zero(t, hub.Count())
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error %v", err)
}

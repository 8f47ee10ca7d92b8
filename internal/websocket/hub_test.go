package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creator-platform/internal/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) PaymentAlert {
	t.Helper()
	select {
	case msg := <-c.Send:
		var alert PaymentAlert
		require.NoError(t, json.Unmarshal(msg, &alert))
		return alert
	case <-time.After(time.Second):
		t.Fatal("no alert received")
		return PaymentAlert{}
	}
}

func TestHubDeliversToCreatorClients(t *testing.T) {
	h := startHub(t)
	a := &Client{Hub: h, Send: make(chan []byte, 4), CreatorID: 1}
	b := &Client{Hub: h, Send: make(chan []byte, 4), CreatorID: 1}
	other := &Client{Hub: h, Send: make(chan []byte, 4), CreatorID: 2}
	require.True(t, h.Attach(a))
	require.True(t, h.Attach(b))
	require.True(t, h.Attach(other))

	done := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h.PaymentCompleted(models.Transaction{
		ID: "t1", CreatorID: 1, Kind: models.KindTip, AmountMinor: 10000, Currency: "INR",
		Message: "hello", IsPublic: true, CompletedAt: &done,
	}, nil)

	for _, c := range []*Client{a, b} {
		alert := receive(t, c)
		assert.Equal(t, "t1", alert.TransactionID)
		assert.Equal(t, int64(10000), alert.AmountMinor)
		assert.Equal(t, "100.00 INR", alert.AmountDisplay)
		assert.Equal(t, "hello", alert.Message)
		assert.True(t, done.Equal(alert.CompletedAt))
	}

	select {
	case <-other.Send:
		t.Fatal("alert delivered to another creator")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubHidesPrivateMessages(t *testing.T) {
	h := startHub(t)
	c := &Client{Hub: h, Send: make(chan []byte, 1), CreatorID: 1}
	require.True(t, h.Attach(c))

	h.PaymentCompleted(models.Transaction{ID: "t1", CreatorID: 1, AmountMinor: 5000, Currency: "IDR", Message: "secret"}, nil)

	alert := receive(t, c)
	assert.Empty(t, alert.Message)
	assert.Equal(t, "5000 IDR", alert.AmountDisplay)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := &Client{Hub: h, Send: make(chan []byte, 1), CreatorID: 1}
	require.True(t, h.Attach(c))
	h.Detach(c)

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestPaymentCompletedNeverBlocks(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < cap(h.BroadcastAlert)+10; i++ {
		h.PaymentCompleted(models.Transaction{ID: "t", CreatorID: 1}, nil)
	}
	assert.Len(t, h.BroadcastAlert, cap(h.BroadcastAlert))
}

func TestHubStopsAcceptingClientsAfterRun(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := &Client{Hub: h, Send: make(chan []byte, 1), CreatorID: 1}
	require.True(t, h.Attach(c))
	cancel()
	<-stopped

	_, ok := <-c.Send
	assert.False(t, ok)

	returned := make(chan bool, 1)
	go func() {
		h.Detach(c)
		returned <- h.Attach(&Client{Hub: h, Send: make(chan []byte, 1), CreatorID: 2})
	}()
	select {
	case attached := <-returned:
		assert.False(t, attached)
	case <-time.After(time.Second):
		t.Fatal("hub calls blocked after Run returned")
	}
}

package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/moderation"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePush struct {
	mu        sync.Mutex
	endpoints []string
	done      chan struct{}
}

func (f *fakePush) Send(endpoint string, keys map[string]string, payload []byte) error {
	f.mu.Lock()
	f.endpoints = append(f.endpoints, endpoint)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func newPushHub(t *testing.T) (*Hub, *fakePush) {
	t.Helper()
	push := &fakePush{done: make(chan struct{}, 4)}
	svc := &moderation.Service{Push: push, Logger: hclog.NewNullLogger()}
	hub, err := NewHub("lobby", &config.Config{}, nil, svc, nil)
	require.NoError(t, err)
	return hub, push
}

func TestDeliverPushesOnlyWhenTargetOffline(t *testing.T) {
	hub, push := newPushHub(t)
	notification := &moderation.PushNotification{
		Endpoint: "https://push.example.com/bob",
		Payload:  []byte(`{"message":"psst"}`),
	}

	hub.deliver(nil, &moderation.Result{
		TargetConnectionId: "conn-gone",
		Push:               notification,
	})
	select {
	case <-push.done:
	case <-time.After(time.Second):
		t.Fatal("no push for an offline target within a second")
	}
	push.mu.Lock()
	assert.Equal(t, []string{"https://push.example.com/bob"}, push.endpoints)
	push.mu.Unlock()

	// a live target connection suppresses the push
	client := &Client{
		hub:      hub,
		Send:     make(chan []byte, 1),
		identity: types.SessionIdentity("sess-bob", "", "conn-bob"),
	}
	hub.clients[client] = struct{}{}
	hub.byConn["conn-bob"] = client

	hub.deliver(nil, &moderation.Result{
		TargetConnectionId: "conn-bob",
		Push:               notification,
	})
	select {
	case <-push.done:
		t.Fatal("push fired for a live target connection")
	case <-time.After(50 * time.Millisecond):
	}
}

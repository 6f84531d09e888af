package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/stash/internal/bus"
	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/log"
)

// fakeInvoker records the last call and replies with canned data.
type fakeInvoker struct {
	mu         sync.Mutex
	gotCommand string
	gotParams  map[string]any
	reply      any
	err        error
}

func (f *fakeInvoker) Invoke(_ context.Context, command string, params any, result any) error {
	f.mu.Lock()
	f.gotCommand = command
	f.gotParams = nil
	if params != nil {
		if data, err := json.Marshal(params); err == nil {
			_ = json.Unmarshal(data, &f.gotParams)
		}
	}
	reply := f.reply
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if result == nil || reply == nil {
		return nil
	}
	data, merr := json.Marshal(reply)
	if merr != nil {
		return merr
	}
	return json.Unmarshal(data, result)
}

func newBridge(t *testing.T, inv gateway.Invoker, events bus.Bus) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(NewServer(inv, events, log.Null()).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client()), srv.URL
}

func TestCommandRoundTrip(t *testing.T) {
	fake := &fakeInvoker{reply: domain.Creator{ID: "c1", Name: "Ada"}}
	client, _ := newBridge(t, fake, bus.NewDispatcher(log.Null()))

	var got domain.Creator
	err := client.Invoke(context.Background(), gateway.CmdGetCreator,
		map[string]string{"id": "c1"}, &got)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, gateway.CmdGetCreator, fake.gotCommand)
	assert.Equal(t, "c1", fake.gotParams["id"])
}

func TestCommandErrorCrossesTheWire(t *testing.T) {
	fake := &fakeInvoker{err: &gateway.Error{
		Command: gateway.CmdGetCreator,
		Code:    gateway.CodeNotFound,
		Message: "no such creator",
	}}
	client, _ := newBridge(t, fake, bus.NewDispatcher(log.Null()))

	err := client.Invoke(context.Background(), gateway.CmdGetCreator, map[string]string{"id": "x"}, nil)
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gateway.CodeNotFound, gwErr.Code)
	assert.Equal(t, gateway.CmdGetCreator, gwErr.Command)
	assert.Equal(t, "no such creator", gwErr.Message)
}

func TestUnreachableBackendReportsSentinel(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeInvoker{}, bus.NewDispatcher(log.Null()), log.Null()).Handler())
	client := NewClient(srv.URL, nil)
	srv.Close()

	err := client.Invoke(context.Background(), gateway.CmdGetCreators, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	var gwErr *gateway.Error
	assert.False(t, errors.As(err, &gwErr), "transport failures are not backend-reported errors")
}

func TestEventStreamRepublishesTypedPayloads(t *testing.T) {
	remote := bus.NewDispatcher(log.Null())
	_, url := newBridge(t, &fakeInvoker{}, remote)

	local := bus.NewDispatcher(log.Null())
	received := make(chan domain.SyncEvent, 1)
	local.Subscribe(domain.EventSyncCompleted, func(payload any) {
		if ev, ok := payload.(domain.SyncEvent); ok {
			select {
			case received <- ev:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := NewEventStream(url, &http.Client{}, local, log.Null())
	go stream.Run(ctx)

	// The subscription lands when the SSE handler starts; publish until the
	// event makes it across.
	deadline := time.Now().Add(3 * time.Second)
	for {
		remote.Publish(domain.EventSyncCompleted, domain.SyncEvent{SourceID: "s1", NewItems: 3})
		select {
		case ev := <-received:
			assert.Equal(t, "s1", ev.SourceID)
			assert.Equal(t, 3, ev.NewItems)
			return
		case <-time.After(10 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("event never crossed the bridge")
			}
		}
	}
}

func TestDecodeEventRejectsUnknownName(t *testing.T) {
	_, err := decodeEvent("totally_new_event", []byte(`{}`))
	assert.Error(t, err)
}

func TestDecodeEventTypesPerFamily(t *testing.T) {
	p, err := decodeEvent(domain.EventDownloadProgress, []byte(`{"feed_item_id":"f1","percent":42}`))
	require.NoError(t, err)
	dl, ok := p.(domain.DownloadEvent)
	require.True(t, ok)
	assert.Equal(t, 42.0, dl.Percent)

	p, err = decodeEvent(domain.EventMetadataUpdate, []byte(`{"feed_item_id":"f1","status":"completed"}`))
	require.NoError(t, err)
	md, ok := p.(domain.MetadataEvent)
	require.True(t, ok)
	assert.Equal(t, domain.MetadataCompleted, md.Status)
}

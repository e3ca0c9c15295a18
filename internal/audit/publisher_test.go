package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(consentID string, action Action) Event {
	return Event{
		Action:      action,
		ConsentID:   consentID,
		APIClientID: "tpp-1",
		IntentType:  "domestic_payment_consent",
		NewStatus:   "Authorised",
	}
}

func TestPublisherSyncMode(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, discardLogger())

	publisher.Emit(context.Background(), event("PDC_1", ActionConsentCreated))
	publisher.Emit(context.Background(), event("PDC_1", ActionConsentAuthorised))
	publisher.Emit(context.Background(), event("PDC_2", ActionConsentCreated))

	events, err := store.ListByConsent(context.Background(), "PDC_1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionConsentCreated, events[0].Action)
	assert.Equal(t, ActionConsentAuthorised, events[1].Action)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestPublisherAsyncModeFlushesOnClose(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, discardLogger(), WithAsyncBuffer(16))

	for i := 0; i < 10; i++ {
		publisher.Emit(context.Background(), event("PDC_1", ActionConsentCreated))
	}
	publisher.Close()

	events, err := store.ListByConsent(context.Background(), "PDC_1")
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestPublisherDropsAfterClose(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, discardLogger(), WithAsyncBuffer(4))
	publisher.Close()

	// Must not panic on the closed inbox, and must not record anything.
	publisher.Emit(context.Background(), event("PDC_1", ActionConsentCreated))

	events, err := store.ListByConsent(context.Background(), "PDC_1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPublisherCloseIsIdempotent(t *testing.T) {
	publisher := NewPublisher(NewInMemoryStore(), discardLogger(), WithAsyncBuffer(4))
	publisher.Close()
	publisher.Close()
}

func TestPublisherConcurrentEmitAndClose(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store, discardLogger(), WithAsyncBuffer(64))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				publisher.Emit(context.Background(), event("PDC_1", ActionConsentCreated))
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	publisher.Close()
	wg.Wait()
	// Some events may be dropped after close; the point is no panic and no
	// deadlock.
}

type failingSink struct{}

func (failingSink) Append(context.Context, Event) error {
	return errors.New("broker unreachable")
}

func TestPublisherSwallowsSinkFailures(t *testing.T) {
	publisher := NewPublisher(failingSink{}, discardLogger())

	// Must log and return, never propagate.
	publisher.Emit(context.Background(), event("PDC_1", ActionConsentCreated))
}

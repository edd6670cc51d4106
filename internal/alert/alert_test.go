package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leverager/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	name     string
	sendFunc func(ctx context.Context, alert Payload) error

	mu   sync.Mutex
	sent []Payload
}

func (m *mockChannel) Name() string {
	return m.name
}

func (m *mockChannel) Send(ctx context.Context, alert Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, alert)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, alert)
	}
	return nil
}

func (m *mockChannel) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockChannel) lastSent() Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func TestManagerBroadcastsToAllChannels(t *testing.T) {
	m := NewManager(logging.GetGlobalLogger())

	ch1 := &mockChannel{name: "mock1"}
	ch2 := &mockChannel{name: "mock2"}
	m.AddChannel(ch1)
	m.AddChannel(ch2)
	assert.Equal(t, 2, m.ChannelCount())

	m.Alert(context.Background(), "Depeg guard tripped", "USDC at 0.97", Critical, map[string]string{"asset": "USDC"})

	require.Eventually(t, func() bool {
		return ch1.sentCount() == 1 && ch2.sentCount() == 1
	}, time.Second, 10*time.Millisecond)

	payload := ch1.lastSent()
	assert.Equal(t, "Depeg guard tripped", payload.Title)
	assert.Equal(t, Critical, payload.Level)
	assert.Equal(t, "USDC", payload.Fields["asset"])
	assert.False(t, payload.Timestamp.IsZero())
}

func TestManagerChannelFailureDoesNotBlockOthers(t *testing.T) {
	m := NewManager(logging.GetGlobalLogger())

	failing := &mockChannel{name: "failing", sendFunc: func(ctx context.Context, alert Payload) error {
		return errors.New("webhook down")
	}}
	healthy := &mockChannel{name: "healthy"}
	m.AddChannel(failing)
	m.AddChannel(healthy)

	m.Alert(context.Background(), "Rebalance failed", "retries exhausted", Error, nil)

	require.Eventually(t, func() bool {
		return healthy.sentCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEmptyCredentialChannelsAreNoops(t *testing.T) {
	// Unconfigured destinations silently accept alerts rather than failing.
	assert.NoError(t, NewSlackChannel("").Send(context.Background(), Payload{Level: Info}))
	assert.NoError(t, NewTelegramChannel("", "").Send(context.Background(), Payload{Level: Info}))
}

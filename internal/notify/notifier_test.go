package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	fail bool
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	if f.fail {
		return errors.New("channel down")
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, slog.Default())

	require.NoError(t, n.Notify(context.Background(), "dca_executed", "t", "m"))
	assert.Equal(t, []string{"t"}, a.sent)
	assert.Equal(t, []string{"t"}, b.sent)
}

func TestNotifyEventFilter(t *testing.T) {
	s := &fakeSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"execution_failed"}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), "dca_executed", "t", "m"))
	assert.Empty(t, s.sent, "unlisted events are dropped")

	require.NoError(t, n.Notify(context.Background(), "execution_failed", "t", "m"))
	assert.Len(t, s.sent, 1)
}

func TestOneFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", fail: true}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.Notify(context.Background(), "dca_executed", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.sent, 1)
}

func TestNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, slog.Default())
	assert.NoError(t, n.Notify(context.Background(), "dca_executed", "t", "m"))
}

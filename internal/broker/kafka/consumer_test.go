package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/ReturnBox/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs      []kafka.Message
	err       error
	i         int
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.i < len(r.msgs) {
		m := r.msgs[r.i]
		r.i++
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	return kafka.Message{}, errors.New("eof")
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_ConsumeAlerts_DecodesAndCommits(t *testing.T) {
	fr := &fakeReader{
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`{"type":"tracking_update","title":"t","body":"b","payload":{"item_id":"a"}}`)},
			{Offset: 2, Value: []byte(`not json`)},
		},
		err: errors.New("stop"),
	}
	c := newConsumerWithReader(fr)

	var got []messages.Alert
	err := c.ConsumeAlerts(context.Background(), func(ctx context.Context, a messages.Alert) error {
		got = append(got, a)
		return nil
	})
	require.Error(t, err)
	require.Len(t, got, 1)
	require.Equal(t, messages.AlertTypeTrackingUpdate, got[0].Type)
	require.Equal(t, "a", got[0].Payload["item_id"])
	require.Len(t, fr.committed, 2)
}

func TestConsumer_ConsumeAlerts_HandlerErrorStopsWithoutCommit(t *testing.T) {
	fr := &fakeReader{msgs: []kafka.Message{{Value: []byte(`{"type":"x"}`)}}}
	c := newConsumerWithReader(fr)

	want := errors.New("handler failed")
	err := c.ConsumeAlerts(context.Background(), func(ctx context.Context, a messages.Alert) error { return want })
	require.ErrorIs(t, err, want)
	require.Empty(t, fr.committed)
}

func TestNewConsumer_Close(t *testing.T) {
	c := NewConsumer([]string{"localhost:0"}, "t", "g")
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}

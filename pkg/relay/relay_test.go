package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"chatrelay/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subj string
	data []byte
}

type fakeConn struct {
	sent []published
	err  error
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{subj, data})
	return nil
}

type fakeSink struct {
	n   int
	err error
}

func (s *fakeSink) Insert(_ context.Context, m *models.Message) error {
	if s.err != nil {
		return s.err
	}
	s.n++
	m.ID = "stored-1"
	return nil
}

func TestPublishAfterInsert(t *testing.T) {
	conn := &fakeConn{}
	sink := &fakeSink{}
	p := NewPublisher(sink, conn, "chatrelay.deliver.", nil)

	m := &models.Message{Kind: models.KindMessage, From: "john", To: "derp"}
	require.NoError(t, p.Insert(context.Background(), m))
	assert.Equal(t, 1, sink.n)
	require.Len(t, conn.sent, 1)
	assert.Equal(t, "chatrelay.deliver.derp", conn.sent[0].subj)

	var got models.Message
	require.NoError(t, json.Unmarshal(conn.sent[0].data, &got))
	assert.Equal(t, "stored-1", got.ID)
	assert.Equal(t, "john", got.From)
}

func TestStoreFailureSkipsPublish(t *testing.T) {
	boom := errors.New("boom")
	conn := &fakeConn{}
	p := NewPublisher(&fakeSink{err: boom}, conn, "x", nil)
	err := p.Insert(context.Background(), &models.Message{To: "derp"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, conn.sent)
}

func TestPublishFailureIsNotReturned(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher(sink, &fakeConn{err: errors.New("closed")}, "x", nil)
	assert.NoError(t, p.Insert(context.Background(), &models.Message{To: "derp"}))
	assert.Equal(t, 1, sink.n)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "p.bob", Subject("p", "bob"))
	assert.Equal(t, "p.j_doe", Subject("p", "j.doe"))
	assert.Equal(t, "p.__", Subject("p", "*>"))
	assert.Equal(t, "p._", Subject("p", ""))
}

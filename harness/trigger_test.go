package harness

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published  []publishedMsg
	flushCount int
	publishErr error
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) Flush() error {
	p.flushCount++
	return nil
}

func lastPublishedPayload(t *testing.T, p *fakePublisher) map[string]interface{} {
	require.NotEmpty(t, p.published)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(p.published[len(p.published)-1].data, &payload))
	return payload
}

func TestBusTriggerStampsTypeTimestampAndKey(t *testing.T) {
	pub := &fakePublisher{}
	trigger := NewBusTrigger(pub, nil)

	key, err := trigger.Publish("order.assigned", "order_assigned",
		map[string]interface{}{"driver_id": "d1"})
	require.NoError(t, err)
	require.NotEmpty(t, key)
	assert.Equal(t, 1, pub.flushCount)

	payload := lastPublishedPayload(t, pub)
	assert.Equal(t, "order.assigned", pub.published[0].subject)
	assert.Equal(t, "order_assigned", payload["event_type"])
	assert.Equal(t, "d1", payload["driver_id"])
	assert.Equal(t, string(key), payload["order_id"])
	assert.NotNil(t, payload["timestamp"])
}

func TestBusTriggerKeepsCallerProvidedKey(t *testing.T) {
	pub := &fakePublisher{}
	trigger := NewBusTrigger(pub, nil)

	key, err := trigger.Publish("order.completed", "order_completed",
		map[string]interface{}{"order_id": "my-order"})
	require.NoError(t, err)
	assert.Equal(t, CorrelationKey("my-order"), key)

	payload := lastPublishedPayload(t, pub)
	assert.Equal(t, "my-order", payload["order_id"])
}

func TestBusTriggerPublishRawPassesBytesThrough(t *testing.T) {
	pub := &fakePublisher{}
	trigger := NewBusTrigger(pub, nil)

	raw := []byte("this is not json at all")
	require.NoError(t, trigger.PublishRaw("order.assigned", raw))

	require.Len(t, pub.published, 1)
	assert.Equal(t, "order.assigned", pub.published[0].subject)
	assert.Equal(t, raw, pub.published[0].data, "raw bytes must not be stamped or rewritten")
	assert.Equal(t, 1, pub.flushCount)
}

func TestBusTriggerDoesNotRetry(t *testing.T) {
	pub := &fakePublisher{publishErr: errors.New("bus gone")}
	trigger := NewBusTrigger(pub, nil)

	_, err := trigger.Publish("order.assigned", "order_assigned", nil)
	require.Error(t, err)
	assert.Empty(t, pub.published)
	assert.Equal(t, 0, pub.flushCount)
}

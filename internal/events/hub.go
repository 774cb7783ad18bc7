package events

import (
	"encoding/json"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/wireflow/pkg/api"
)

type (
	// Hub fans runtime events out to any number of consumers
	Hub struct {
		topic topic.Topic[*api.Event]
		prod  topic.Producer[*api.Event]
		now   func() time.Time
	}

	// Consumer receives events published after it was created
	Consumer = topic.Consumer[*api.Event]
)

const (
	TopicStatus = "status/"
	TopicDebug  = "debug"
	TopicDeploy = "notification/runtime-deploy"
	TopicError  = "error"
)

// NewHub creates an event hub stamping events with the provided clock
func NewHub(now func() time.Time) *Hub {
	t := caravan.NewTopic[*api.Event]()
	return &Hub{
		topic: t,
		prod:  t.NewProducer(),
		now:   now,
	}
}

// NewConsumer subscribes to the hub
func (h *Hub) NewConsumer() Consumer {
	return h.topic.NewConsumer()
}

// Publish encodes data and sends it to every consumer
func (h *Hub) Publish(typ api.EventType, topic string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	message.Send(h.prod, &api.Event{
		Type:      typ,
		Topic:     topic,
		Data:      raw,
		Timestamp: h.now().UnixMilli(),
	})
	return nil
}

// Close stops the hub's producer
func (h *Hub) Close() {
	h.prod.Close()
}

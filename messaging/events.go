package messaging

import (
	"log"

	"shopsync/store"
	"shopsync/syncer"
)

// WireEvents stages every sync lifecycle event in the outbox for delivery
// to the events topic. Returns the subscriber id so callers can detach.
func WireEvents(bus *syncer.EventBus, db *store.DB, topic string) syncer.SubscriberID {
	return bus.Subscribe(func(evt syncer.Event) {
		env := NewEnvelope(evt.Type.String(), evt.Shop, evt.Payload)
		env.Timestamp = evt.Timestamp
		data, err := env.Encode()
		if err != nil {
			log.Printf("messaging: encode %s event: %v", env.MsgType, err)
			return
		}
		if err := db.EnqueueOutbox(topic, data, env.MsgType, env.Shop); err != nil {
			log.Printf("messaging: enqueue %s event: %v", env.MsgType, err)
		}
	})
}

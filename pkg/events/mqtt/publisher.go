package mqtt

import (
	"strings"

	"github.com/robotalks/iob-boot/pkg/events"
)

// EventsTopic is the topic suffix events of a session are posted to.
const EventsTopic = "events"

// SessionTopic returns the events topic of a session.
func SessionTopic(session string) string {
	return session + "/" + EventsTopic
}

// Publisher implements events.Publisher on a Queue.
type Publisher struct {
	Queue  *Queue
	QoS    byte
	Retain bool
}

// NewPublisher creates a Publisher.
func NewPublisher(q *Queue) *Publisher {
	return &Publisher{Queue: q}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(session string, msg events.Message) error {
	typed, err := events.TypedFrom(session, msg)
	if err != nil {
		return err
	}
	data, err := typed.Encode()
	if err != nil {
		return err
	}
	token := p.Queue.PubWith(SessionTopic(session), data, p.QoS, p.Retain)
	token.Wait()
	return token.Error()
}

// EventHandler receives decoded events. err is set when the payload could
// not be decoded, in which case typed or msg may be nil.
type EventHandler func(session string, typed *events.Typed, msg events.Message, err error)

// SubEvents subscribes to the events of all sessions.
func SubEvents(q *Queue, handler EventHandler) *Subscription {
	return q.Sub("+/"+EventsTopic, func(topic string, payload []byte) {
		session := strings.TrimSuffix(topic, "/"+EventsTopic)
		typed, err := events.DecodeTyped(payload)
		if err != nil {
			handler(session, nil, nil, err)
			return
		}
		msg, err := typed.Decode()
		handler(session, typed, msg, err)
	})
}

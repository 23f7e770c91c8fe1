package chat

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"batepapo/internal/logger"
)

const (
	eventStream    = "CHAT_EVENTS"
	eventRetention = 30 * time.Minute

	subjectJoined   = "chat.presence.joined"
	subjectLeft     = "chat.presence.left"
	subjectMessages = "chat.messages"
)

// Events publishes presence and traffic events to NATS JetStream when a
// URL is configured. Every method is safe on a publisher that never
// connected, and publish errors are logged and dropped so chat delivery
// never waits on the broker.
type Events struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *logger.Logger
}

type presenceEvent struct {
	Name string `json:"nome"`
	At   int64  `json:"hora"`
}

type messageEvent struct {
	Sender    string `json:"remetente"`
	Recipient string `json:"destinatario"`
	At        int64  `json:"hora"`
}

// ConnectEvents wires the optional publisher. An empty URL, a failed
// connection, or a missing JetStream all yield a publisher that drops
// everything.
func ConnectEvents(url string, log *logger.Logger) *Events {
	e := &Events{log: log}
	if url == "" {
		return e
	}

	nc, err := nats.Connect(url)
	if err != nil {
		log.Warnf("running without NATS, events disabled: %v", err)
		return e
	}
	e.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		log.Warnf("running without JetStream, events disabled: %v", err)
		return e
	}

	cfg := &nats.StreamConfig{
		Name:     eventStream,
		Subjects: []string{"chat.>"},
		Storage:  nats.FileStorage,
		MaxAge:   eventRetention,
	}
	if _, err := js.StreamInfo(eventStream); err != nil {
		if _, err := js.AddStream(cfg); err != nil {
			log.Errorf("creating stream %s: %v", eventStream, err)
			return e
		}
	} else if _, err := js.UpdateStream(cfg); err != nil {
		log.Errorf("updating stream %s: %v", eventStream, err)
	}

	e.js = js
	log.Infof("publishing chat events to %s", url)
	return e
}

func (e *Events) PublishJoin(name string) {
	e.publish(subjectJoined, presenceEvent{Name: name, At: time.Now().UnixMilli()})
}

func (e *Events) PublishLeave(name string) {
	e.publish(subjectLeft, presenceEvent{Name: name, At: time.Now().UnixMilli()})
}

// PublishMessage records routing metadata only; message text is never
// persisted anywhere.
func (e *Events) PublishMessage(sender, recipient string) {
	e.publish(subjectMessages, messageEvent{Sender: sender, Recipient: recipient, At: time.Now().UnixMilli()})
}

func (e *Events) publish(subject string, v interface{}) {
	if e == nil || e.js == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.log.Errorf("marshaling event for %s: %v", subject, err)
		return
	}
	if _, err := e.js.Publish(subject, data); err != nil {
		e.log.Errorf("publishing %s: %v", subject, err)
	}
}

// Close releases the NATS connection if one was made.
func (e *Events) Close() {
	if e != nil && e.nc != nil {
		e.nc.Close()
	}
}

package chat

import (
	"fmt"

	"batepapo/internal/logger"
	"batepapo/internal/protocol"
)

// Router decides destinations for parsed requests and dispatches framed
// envelopes onto session queues. Presence notifications share the same
// delivery primitives as chat traffic.
type Router struct {
	reg    *Registry
	events *Events
	log    *logger.Logger
}

func NewRouter(reg *Registry, events *Events, log *logger.Logger) *Router {
	return &Router{reg: reg, events: events, log: log}
}

// Join runs the Pending→Authenticated transition: the name is claimed
// atomically, the new session receives the success Result and the
// roster as it stood the instant before it joined, and everyone already
// present is told who arrived.
func (r *Router) Join(s *Session, name string) error {
	roster, peers, err := r.reg.Insert(name, s)
	if err != nil {
		return err
	}
	if !s.setAuthenticated(name) {
		// a disconnect won the race; undo the registration quietly
		r.reg.Remove(name, s)
		return ErrSessionClosed
	}

	r.send(s, protocol.Result{Code: protocol.ResultOK, Message: "Login efetuado com sucesso."})
	r.send(s, protocol.Roster{Registered: roster})

	joined, err := protocol.Encode(protocol.TypeListing, "", protocol.Joined{Names: []string{name}})
	if err != nil {
		r.log.Errorf("encoding join notification: %v", err)
	} else {
		for _, p := range peers {
			r.deliver(p, joined)
		}
	}

	r.events.PublishJoin(name)
	r.log.Infof("user %q logged in from %s", name, s.RemoteAddr())
	return nil
}

// Route dispatches one chat message from an authenticated session. The
// original frame bytes are relayed verbatim. Broadcast never echoes to
// the sender; unicast to an unknown name answers the sender with a
// failure Result and delivers nothing.
func (r *Router) Route(s *Session, msg protocol.Chat, raw []byte) {
	if msg.Recipient == protocol.RecipientAll {
		r.broadcast(raw, s)
		r.events.PublishMessage(msg.Sender, msg.Recipient)
		return
	}

	dest, ok := r.reg.Lookup(msg.Recipient)
	if !ok {
		r.send(s, protocol.Result{
			Code:    protocol.ResultFailed,
			Message: fmt.Sprintf("Usuário %s não encontrado.", msg.Recipient),
		})
		return
	}
	r.deliver(dest, raw)
	r.events.PublishMessage(msg.Sender, msg.Recipient)
}

// Disconnect runs the terminal transition. It is safe to call from any
// goroutine and any number of times: the registry entry is removed and
// the leave notification broadcast exactly once, only if the session
// had been authenticated.
func (r *Router) Disconnect(s *Session) {
	name, wasAuthenticated, first := s.close()
	if !first || !wasAuthenticated {
		return
	}

	r.reg.Remove(name, s)
	left, err := protocol.Encode(protocol.TypeListing, "", protocol.Left{Names: []string{name}})
	if err != nil {
		r.log.Errorf("encoding leave notification: %v", err)
	} else {
		r.broadcast(left, s)
	}
	r.events.PublishLeave(name)
	r.log.Infof("user %q disconnected", name)
}

// send encodes a server-originated payload for one session. The payload
// type picks the envelope tipo.
func (r *Router) send(s *Session, payload interface{}) {
	var t protocol.Type
	switch payload.(type) {
	case protocol.Result:
		t = protocol.TypeResult
	case protocol.Roster, protocol.Joined, protocol.Left:
		t = protocol.TypeListing
	default:
		r.log.Errorf("unroutable payload %T", payload)
		return
	}
	line, err := protocol.Encode(t, "", payload)
	if err != nil {
		r.log.Errorf("encoding %T: %v", payload, err)
		return
	}
	r.deliver(s, line)
}

// deliver enqueues one frame. A destination that cannot keep up is
// disconnected on its own path; the sender is never stalled or told.
func (r *Router) deliver(dest *Session, line []byte) {
	if dest.enqueue(line) {
		return
	}
	r.log.Warnf("dropping frame for %q: outbound queue full or session closed", dest.Name())
	go r.Disconnect(dest)
}

func (r *Router) broadcast(line []byte, except *Session) {
	for _, p := range r.reg.Snapshot() {
		if p == except {
			continue
		}
		r.deliver(p, line)
	}
}

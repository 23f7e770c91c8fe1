// Package protocol implements the wire contract shared by the chat
// server and its front ends: one JSON envelope per line, tagged by tipo,
// with one payload shape per tag.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version is the only protocol generation in existence.
const Version = 1

// Type tags the envelope payload.
type Type int

const (
	TypeResult  Type = 100 // server → client command outcome
	TypeListing Type = 101 // server → client presence notification
	TypeLogin   Type = 200 // client → server, mandatory first frame
	TypeMessage Type = 201 // client → server chat, relayed verbatim
)

// RecipientAll addresses a message to every authenticated user but the
// sender. The name is reserved and can never be logged in with.
const RecipientAll = "all"

// Result codes for the resultado field.
const (
	ResultOK     = 0
	ResultFailed = 1
)

var (
	// ErrMalformedJSON reports a line that is not a valid envelope, or a
	// conteudo that does not match its tipo.
	ErrMalformedJSON = errors.New("malformed frame")
	// ErrUnknownType reports a tipo outside the protocol enum.
	ErrUnknownType = errors.New("unknown frame type")
)

// Login is the conteudo of a TypeLogin frame.
type Login struct {
	Sender string `json:"remetente"`
}

// Chat is the conteudo of a TypeMessage frame.
type Chat struct {
	Sender    string `json:"remetente"`
	Recipient string `json:"destinatario"`
	Text      string `json:"texto"`
}

// Result is the conteudo of a TypeResult frame.
type Result struct {
	Code    int    `json:"resultado"`
	Message string `json:"mensagem"`
}

// Listing is the decoded conteudo of a TypeListing frame. Exactly one
// field is present on the wire; a non-nil slice marks which one, so an
// empty roster is still distinguishable from an absent one.
type Listing struct {
	Registered []string `json:"registrados"`
	Joined     []string `json:"entraram"`
	Left       []string `json:"sairam"`
}

// Roster, Joined and Left are the encode-side listing payloads, one per
// notification kind, so a listing can never carry two of them.

type Roster struct {
	Registered []string `json:"registrados"`
}

type Joined struct {
	Names []string `json:"entraram"`
}

type Left struct {
	Names []string `json:"sairam"`
}

// envelope is the wire form. Conteudo stays raw until the tag is known.
type envelope struct {
	Version int             `json:"version"`
	Time    int64           `json:"hora"`
	Type    Type            `json:"tipo"`
	Origin  string          `json:"origem,omitempty"`
	Content json.RawMessage `json:"conteudo"`
}

// Frame is one decoded protocol unit. Payload holds the conteudo decoded
// for the frame's tipo: Login, Chat, Result or Listing. Raw keeps the
// exact line as received, newline excluded, so relays stay byte-for-byte
// identical to what the sender framed.
type Frame struct {
	Version int
	Time    int64
	Type    Type
	Origin  string
	Payload interface{}
	Raw     []byte
}

// Decode parses one delimited line into a Frame. It fails with
// ErrMalformedJSON or ErrUnknownType and has no side effects.
func Decode(line []byte) (*Frame, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	f := &Frame{
		Version: env.Version,
		Time:    env.Time,
		Type:    env.Type,
		Origin:  env.Origin,
		Raw:     trimLine(line),
	}

	switch env.Type {
	case TypeLogin:
		var p Login
		if err := decodeContent(env.Content, &p); err != nil {
			return nil, err
		}
		if p.Sender == "" {
			return nil, fmt.Errorf("%w: login without remetente", ErrMalformedJSON)
		}
		f.Payload = p
	case TypeMessage:
		var p Chat
		if err := decodeContent(env.Content, &p); err != nil {
			return nil, err
		}
		if p.Sender == "" || p.Recipient == "" {
			return nil, fmt.Errorf("%w: message without remetente or destinatario", ErrMalformedJSON)
		}
		f.Payload = p
	case TypeResult:
		var p Result
		if err := decodeContent(env.Content, &p); err != nil {
			return nil, err
		}
		f.Payload = p
	case TypeListing:
		var p Listing
		if err := decodeContent(env.Content, &p); err != nil {
			return nil, err
		}
		f.Payload = p
	default:
		return nil, fmt.Errorf("%w: tipo %d", ErrUnknownType, env.Type)
	}
	return f, nil
}

func decodeContent(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing conteudo", ErrMalformedJSON)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return nil
}

// Encode frames a payload into a newline-terminated envelope, stamping
// the protocol version and the current time in milliseconds.
func Encode(t Type, origin string, payload interface{}) ([]byte, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding conteudo: %w", err)
	}
	line, err := json.Marshal(envelope{
		Version: Version,
		Time:    time.Now().UnixMilli(),
		Type:    t,
		Origin:  origin,
		Content: content,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return append(line, '\n'), nil
}

func trimLine(line []byte) []byte {
	trimmed := bytes.TrimRight(line, "\r\n")
	raw := make([]byte, len(trimmed))
	copy(raw, trimmed)
	return raw
}

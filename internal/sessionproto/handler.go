// Package sessionproto decodes the hyphen-delimited session-layer protocol carried
// inside a transmission's assembled payload and drives the Session Store and Packet
// Forwarder.
package sessionproto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/warrendns/warrendns/internal/forwarder"
	"github.com/warrendns/warrendns/internal/sessionstore"
)

// Handler dispatches session-layer messages against a Session Store and Forwarder.
type Handler struct {
	store      *sessionstore.Store
	fwd        *forwarder.Forwarder
	domainSafe string
	maxBytes   int
}

// New returns a Handler. domainSafeChars is the full alphabet a reply is permitted to
// use; maxResponseBytes is the soft per-"r" byte budget.
func New(store *sessionstore.Store, fwd *forwarder.Forwarder, domainSafeChars string, maxResponseBytes int) *Handler {
	return &Handler{store: store, fwd: fwd, domainSafe: domainSafeChars, maxBytes: maxResponseBytes}
}

// Handle decodes message and dispatches on its verb, returning a reply that is
// always domain-label-safe.
func (h *Handler) Handle(message string) string {
	fields := strings.Split(message, "-")
	verb := fields[0]

	var reply string
	switch verb {
	case "b":
		reply = h.begin()
	case "f":
		reply = h.forward(fields[1:])
	case "r":
		reply = h.request(fields[1:])
	case "e":
		reply = h.end(fields[1:])
	case "test":
		reply = reverse(message)
	default:
		reply = fmt.Sprintf("f-1-Message-type-%s-is-unknown", verb)
	}

	if !h.isDomainSafe(reply) {
		return "f-1-Internal-error-producing-a-safe-reply"
	}
	return reply
}

func (h *Handler) begin() string {
	s := h.store.Begin()
	return "s-" + s.ID
}

// forward implements the "f" verb. A batch of packets is fail-fast: the reply
// carries the first failure encountered, not the last, so the client gets a
// reproducible signal regardless of processing order; "s" is returned only if every
// packet in the batch forwarded successfully.
func (h *Handler) forward(args []string) string {
	if len(args) < 1 {
		return "f-1-Message-is-malformed"
	}
	sid := args[0]
	session, ok := h.store.Get(sid)
	if !ok {
		return sessionUnknown(sid)
	}

	var firstFailure string
	for _, b64 := range args[1:] {
		raw, err := base64.RawStdEncoding.DecodeString(b64)
		if err != nil {
			if firstFailure == "" {
				firstFailure = "f-0-Packet-is-Invalid"
			}
			continue
		}
		switch h.fwd.Forward(session, raw) {
		case forwarder.Invalid:
			if firstFailure == "" {
				firstFailure = "f-0-Packet-is-Invalid"
			}
		case forwarder.Exhausted:
			if firstFailure == "" {
				firstFailure = "f-0-Could-not-find-a-free-port"
			}
		}
	}
	if firstFailure != "" {
		return firstFailure
	}
	return "s"
}

func (h *Handler) request(args []string) string {
	if len(args) < 1 {
		return "f-1-Message-is-malformed"
	}
	sid := args[0]
	session, ok := h.store.Get(sid)
	if !ok {
		return sessionUnknown(sid)
	}

	packets := session.Drain(h.maxBytes)
	var b strings.Builder
	b.WriteString("s")
	for _, p := range packets {
		b.WriteString("-")
		b.WriteString(p)
	}
	return b.String()
}

func (h *Handler) end(args []string) string {
	if len(args) < 1 {
		return "f-1-Message-is-malformed"
	}
	sid := args[0]
	if _, ok := h.store.End(sid); !ok {
		return sessionUnknown(sid)
	}
	return "s"
}

func sessionUnknown(sid string) string {
	return fmt.Sprintf("f-2-Session-identifier-%s-is-unknown", sid)
}

// isDomainSafe requires every character in s to be in the configured alphabet: a
// single unsafe character anywhere fails the whole string.
func (h *Handler) isDomainSafe(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune(h.domainSafe, r)
	}) == -1
}

// reverse reverses s byte-wise: the "test" verb echoes the message backwards, e.g.
// "test-hello" -> "olleh-tset".
func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

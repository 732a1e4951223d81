package ofp

import (
	"fmt"
	"sync"
)

// Decoder turns a raw OpenFlow message (8-byte header included) into
// an application-level value.
type Decoder func(version uint8, msg []byte) (interface{}, error)

// Encoder turns an application-level value into a wire body, not
// including the 8-byte header (the caller fills in Header.Length and
// Xid once the body size is known).
type Encoder func(version uint8, v interface{}) ([]byte, error)

type codecKey struct {
	version uint8
	typ     uint8
}

// Registry is a version-keyed table of message codecs, indexed by
// type number (spec §2, "Codec registry"). The real dispatch path in
// `channel` decodes HELLO, FEATURES_REPLY, and PORT_STATUS through
// Default rather than calling the underlying parse functions itself,
// so registering a version-specific override here changes what those
// channels see.
//
// This module registers decoders only for the handful of message
// types its core behaviors must understand by type number. The
// exhaustive set of OpenFlow message structures is out of scope
// (spec §1); callers needing other message types register their own
// codecs here, keyed the same way, rather than the library trying to
// anticipate every OpenFlow structure across six protocol revisions.
type Registry struct {
	mu       sync.RWMutex
	decoders map[codecKey]Decoder
	encoders map[codecKey]Encoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[codecKey]Decoder),
		encoders: make(map[codecKey]Encoder),
	}
}

// RegisterDecoder installs dec for (version, typ). version 0 means
// "all versions" — a fallback consulted when no exact-version entry
// exists.
func (r *Registry) RegisterDecoder(version, typ uint8, dec Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[codecKey{version, typ}] = dec
}

// RegisterEncoder installs enc for (version, typ).
func (r *Registry) RegisterEncoder(version, typ uint8, enc Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[codecKey{version, typ}] = enc
}

// Decode looks up a decoder for (version, typ) and applies it to msg.
// An exact-version entry takes precedence over a version-0 fallback,
// so a caller can override the built-in decoding for one OpenFlow
// version without disturbing the others.
func (r *Registry) Decode(version, typ uint8, msg []byte) (interface{}, error) {
	r.mu.RLock()
	dec, ok := r.decoders[codecKey{version, typ}]
	if !ok {
		dec, ok = r.decoders[codecKey{0, typ}]
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ofp: no decoder registered for version=%d type=%d", version, typ)
	}
	return dec(version, msg)
}

// Encode looks up an encoder for (version, typ) and applies it to v.
func (r *Registry) Encode(version, typ uint8, v interface{}) ([]byte, error) {
	r.mu.RLock()
	enc, ok := r.encoders[codecKey{version, typ}]
	if !ok {
		enc, ok = r.encoders[codecKey{0, typ}]
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ofp: no encoder registered for version=%d type=%d", version, typ)
	}
	return enc(version, v)
}

// PortStatusEvent is the decoded value Default's PORT_STATUS decoder
// returns: the reason code plus the single reported port record.
type PortStatusEvent struct {
	Reason uint8
	Port   PortEntry
}

// Default is the package-level registry pre-populated with the core
// decoders `channel`'s handshake and dispatch code call through.
var Default = NewRegistry()

func init() {
	Default.RegisterDecoder(0, TypeHello, func(_ uint8, msg []byte) (interface{}, error) {
		return ParseHello(msg)
	})
	Default.RegisterDecoder(0, TypeFeaturesReply, func(version uint8, msg []byte) (interface{}, error) {
		return ParseFeaturesReply(version, msg)
	})
	Default.RegisterDecoder(0, TypePortStatus, func(version uint8, msg []byte) (interface{}, error) {
		reason, port, err := ParsePortStatus(version, msg)
		if err != nil {
			return nil, err
		}
		return PortStatusEvent{reason, port}, nil
	})
}

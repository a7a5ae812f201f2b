package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainEvent = "schemata/event/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentID returns the content-addressed ID of v under domain.
// v must be accepted by MarshalCanonical.
func ContentID(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content id: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// EventID computes the ID of an event from its topic, sequence number and
// canonical payload. Redelivering the same event keeps the same ID, so
// consumers can deduplicate at-least-once delivery.
func EventID(topic string, seq int64, payload map[string]any) (string, error) {
	id, err := ContentID(DomainEvent, map[string]any{
		"topic":   topic,
		"seq":     seq,
		"payload": payload,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	return id, nil
}

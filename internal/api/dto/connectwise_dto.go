package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ConnectwiseCallback is the body of a ConnectWise callback. Entity carries the
// changed record as a JSON-encoded string, or null when it was deleted.
type ConnectwiseCallback struct {
	Action    string          `json:"Action"`
	ID        json.RawMessage `json:"ID"`
	CompanyID json.RawMessage `json:"CompanyId"`
	Entity    json.RawMessage `json:"Entity"`
}

// CallbackEntity is the part of the entity the bridge reads.
type CallbackEntity struct {
	ID      int `json:"id"`
	Company *struct {
		ID int `json:"id"`
	} `json:"company"`
}

// RecordID returns the ID as a string, accepting numbers and strings.
func (c ConnectwiseCallback) RecordID() string {
	return rawScalar(c.ID)
}

// Company returns the top-level CompanyId as a string.
func (c ConnectwiseCallback) Company() string {
	return rawScalar(c.CompanyID)
}

// ParseEntity decodes Entity. A nil entity with no error means the record was deleted.
func (c ConnectwiseCallback) ParseEntity() (*CallbackEntity, error) {
	raw := bytes.TrimSpace(c.Entity)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("entity: %w", err)
		}
		encoded = strings.TrimSpace(encoded)
		if encoded == "" || encoded == "null" {
			return nil, nil
		}
		raw = []byte(encoded)
	}
	var entity CallbackEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, fmt.Errorf("entity: %w", err)
	}
	return &entity, nil
}

// CompanyID returns the entity's company id, if any.
func (e *CallbackEntity) CompanyID() string {
	if e == nil || e.Company == nil || e.Company.ID == 0 {
		return ""
	}
	return strconv.Itoa(e.Company.ID)
}

func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// TicketEventResponse reports how a callback was handled.
type TicketEventResponse struct {
	Outcome  string   `json:"outcome"`
	Reason   string   `json:"reason,omitempty"`
	Thread   string   `json:"thread,omitempty"`
	ThreadTS string   `json:"thread_ts,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Mirrored []string `json:"mirrored,omitempty"`
	Assigned bool     `json:"assigned,omitempty"`
}

package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotID is the fixed id of the single remote backup row. The remote
// store holds exactly one record per shop, upserted in place.
const SnapshotID = "taller-backup"

// Payload is a full dump of the six local tables.
type Payload struct {
	Clients     []Client     `json:"clientes"`
	Equipment   []Equipment  `json:"equipos"`
	Orders      []Order      `json:"ordenes"`
	Events      []Event      `json:"eventos"`
	Parts       []Part       `json:"piezas"`
	Attachments []Attachment `json:"adjuntos"`
}

// Snapshot is the remote backup record: one payload plus the instant it
// was taken. Fecha, not any local marker, is the remote freshness signal.
type Snapshot struct {
	ID      string  `json:"id"`
	Fecha   string  `json:"fecha"`
	Payload Payload `json:"payload"`
}

// NewSnapshot builds a snapshot of the given payload stamped at now.
func NewSnapshot(p Payload, now time.Time) *Snapshot {
	return &Snapshot{
		ID:      SnapshotID,
		Fecha:   FormatTime(now),
		Payload: p,
	}
}

// Taken returns the snapshot timestamp, zero when absent or malformed.
func (s *Snapshot) Taken() time.Time {
	return ParseTime(s.Fecha)
}

// Complete reports whether the payload carries all six table arrays.
// Snapshots uploaded by older clients omitted some tables; pulling one of
// those would wipe local tables it has no data for, so an incomplete
// snapshot is treated as nothing to pull.
func (s *Snapshot) Complete() bool {
	p := s.Payload
	return p.Clients != nil && p.Equipment != nil && p.Orders != nil &&
		p.Events != nil && p.Parts != nil && p.Attachments != nil
}

// UnmarshalSnapshot parses a snapshot record, distinguishing a present but
// empty array from an absent one so Complete() can tell them apart.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &s, nil
}

// Marshal serializes the snapshot for upload. Empty tables are encoded as
// empty arrays, never null, so the record always passes the completeness
// check on the next device.
func (s *Snapshot) Marshal() ([]byte, error) {
	p := &s.Payload
	if p.Clients == nil {
		p.Clients = []Client{}
	}
	if p.Equipment == nil {
		p.Equipment = []Equipment{}
	}
	if p.Orders == nil {
		p.Orders = []Order{}
	}
	if p.Events == nil {
		p.Events = []Event{}
	}
	if p.Parts == nil {
		p.Parts = []Part{}
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Freshness returns the newest actualizada across the payload's orders,
// or the zero time when there are none.
func (p Payload) Freshness() time.Time {
	var max time.Time
	for _, o := range p.Orders {
		if t := ParseTime(o.UpdatedAt); t.After(max) {
			max = t
		}
	}
	return max
}

// Package service builds the transactional creation groups of the repair
// workflow: a registration always produces equipment plus an order plus an
// opening event, and optionally the client, in one atomic write.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reparalab/taller/internal/schema"
	"github.com/reparalab/taller/internal/store"
)

// OrderCode builds the human-facing order code from a creation instant.
func OrderCode(now time.Time) string {
	return fmt.Sprintf("ORD-%d", now.UnixMilli())
}

// ClientInput is what the registration form collects about a client.
type ClientInput struct {
	Name  string
	Phone string
	Email string
}

// EquipmentInput is what the registration form collects about a device.
type EquipmentInput struct {
	Category    string
	Brand       string
	Model       string
	Serial      string
	Description string
}

// Service owns entity construction (ids, codes, timestamps) on top of the
// store's transactional writes.
type Service struct {
	store *store.Store
}

// New creates a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// RegisterOrder creates a new client together with their first equipment,
// its repair order, and the opening event, all in one transaction.
func (s *Service) RegisterOrder(ctx context.Context, ci ClientInput, ei EquipmentInput) (*store.Registration, error) {
	now := time.Now()
	stamp := schema.FormatTime(now)

	client := &schema.Client{
		ID:        uuid.NewString(),
		Name:      ci.Name,
		Phone:     ci.Phone,
		Email:     ci.Email,
		CreatedAt: stamp,
	}

	reg := buildEquipmentGroup(client.ID, []EquipmentInput{ei}, now, "Orden creada")
	reg.Client = client

	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// RegisterForClient creates equipment, order, and opening event for an
// existing client in one transaction.
func (s *Service) RegisterForClient(ctx context.Context, clientID string, ei EquipmentInput) (*store.Registration, error) {
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, fmt.Errorf("client %s not found: %w", clientID, err)
	}

	reg := buildEquipmentGroup(clientID, []EquipmentInput{ei}, time.Now(), "Orden creada para cliente existente")
	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// RegisterBatch creates one client and an order per device in a single
// transaction, for drop-offs of several devices at once.
func (s *Service) RegisterBatch(ctx context.Context, ci ClientInput, eis []EquipmentInput) (*store.Registration, error) {
	if len(eis) == 0 {
		return nil, fmt.Errorf("at least one equipment is required")
	}

	now := time.Now()
	client := &schema.Client{
		ID:        uuid.NewString(),
		Name:      ci.Name,
		Phone:     ci.Phone,
		Email:     ci.Email,
		CreatedAt: schema.FormatTime(now),
	}

	reg := buildEquipmentGroup(client.ID, eis, now, "Orden creada (alta múltiple)")
	reg.Client = client

	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// AddNote appends a free-text note event to an order.
func (s *Service) AddNote(ctx context.Context, orderID, text string) error {
	ev := &schema.Event{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Kind:    schema.EventNote,
		Text:    text,
		Date:    schema.FormatTime(time.Now()),
	}
	return s.store.AppendEvent(ctx, ev)
}

// AddTestResult appends a test event to an order.
func (s *Service) AddTestResult(ctx context.Context, orderID, text string) error {
	ev := &schema.Event{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Kind:    schema.EventTest,
		Text:    text,
		Date:    schema.FormatTime(time.Now()),
	}
	return s.store.AppendEvent(ctx, ev)
}

// AddPart tracks a spare part against an order, status pendiente.
func (s *Service) AddPart(ctx context.Context, orderID, name string, quantity int, unitCost float64) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive (got %d)", quantity)
	}

	p := &schema.Part{
		ID:       uuid.NewString(),
		OrderID:  orderID,
		Name:     name,
		Quantity: quantity,
		UnitCost: unitCost,
		Status:   schema.PartPending,
	}
	return s.store.AddPart(ctx, p)
}

// SetStatus moves an order through its lifecycle, recording the transition
// as a cambio_estado event in the same transaction.
func (s *Service) SetStatus(ctx context.Context, orderID, status string) error {
	valid := false
	for _, st := range schema.OrderStatuses {
		if status == st {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown estado %q", status)
	}

	ev := &schema.Event{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Kind:    schema.EventStatusChange,
		Text:    status,
		Date:    schema.FormatTime(time.Now()),
	}
	return s.store.SetOrderStatus(ctx, orderID, status, ev)
}

// buildEquipmentGroup constructs equipment+order+event triples for one
// client. Orders created in the same millisecond share a code prefix but
// keep distinct UUIDs.
func buildEquipmentGroup(clientID string, eis []EquipmentInput, now time.Time, eventText string) *store.Registration {
	stamp := schema.FormatTime(now)
	reg := &store.Registration{}

	for _, ei := range eis {
		equip := schema.Equipment{
			ID:          uuid.NewString(),
			ClientID:    clientID,
			Category:    ei.Category,
			Brand:       ei.Brand,
			Model:       ei.Model,
			Serial:      ei.Serial,
			Description: ei.Description,
			ReceivedAt:  stamp,
		}
		order := schema.Order{
			ID:        uuid.NewString(),
			Code:      OrderCode(now),
			EquipID:   equip.ID,
			Status:    schema.StatusReception,
			CreatedAt: stamp,
			UpdatedAt: stamp,
		}
		event := schema.Event{
			ID:      uuid.NewString(),
			OrderID: order.ID,
			Kind:    schema.EventNote,
			Text:    eventText,
			Date:    stamp,
		}

		reg.Equipment = append(reg.Equipment, equip)
		reg.Orders = append(reg.Orders, order)
		reg.Events = append(reg.Events, event)
	}

	return reg
}

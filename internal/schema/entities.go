package schema

import (
	"fmt"
	"time"
)

// Table names as they appear in the local store and in the snapshot payload.
const (
	TableClients     = "clientes"
	TableEquipment   = "equipos"
	TableOrders      = "ordenes"
	TableEvents      = "eventos"
	TableParts       = "piezas"
	TableAttachments = "adjuntos"
)

// Tables lists all six entity tables in dependency order (parents first).
var Tables = []string{
	TableClients,
	TableEquipment,
	TableOrders,
	TableEvents,
	TableParts,
	TableAttachments,
}

// Order status lifecycle.
const (
	StatusReception = "recepcion"
	StatusDiagnosis = "diagnostico"
	StatusRepair    = "reparacion"
	StatusReady     = "listo"
	StatusDelivered = "entregado"
)

// OrderStatuses lists the valid order states in lifecycle order.
var OrderStatuses = []string{
	StatusReception,
	StatusDiagnosis,
	StatusRepair,
	StatusReady,
	StatusDelivered,
}

// Part status lifecycle.
const (
	PartPending   = "pendiente"
	PartOrdered   = "pedido"
	PartReceived  = "recibido"
	PartInstalled = "instalado"
)

// Event kinds.
const (
	EventNote         = "nota"
	EventTest         = "prueba"
	EventStatusChange = "cambio_estado"
)

// Client is a repair-shop customer.
type Client struct {
	ID        string `json:"id"`
	Name      string `json:"nombre"`
	Phone     string `json:"telefono"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"fecha_alta"`
}

// Validate checks required Client fields.
func (c *Client) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("nombre is required")
	}
	if c.Phone == "" {
		return fmt.Errorf("telefono is required")
	}
	return nil
}

// Equipment is a device brought in for repair. It belongs to one Client.
type Equipment struct {
	ID          string `json:"id"`
	ClientID    string `json:"clienteId"`
	Category    string `json:"categoria"`
	Brand       string `json:"marca"`
	Model       string `json:"modelo"`
	Serial      string `json:"numeroSerie,omitempty"`
	Description string `json:"descripcion"`
	ReceivedAt  string `json:"fecha_recepcion"`
}

// Validate checks required Equipment fields.
func (e *Equipment) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.ClientID == "" {
		return fmt.Errorf("clienteId is required")
	}
	return nil
}

// Order is a repair order for one Equipment.
//
// UpdatedAt is the freshness signal the sync layer compares against the
// remote snapshot timestamp, so every business mutation to an order or its
// children must touch it.
type Order struct {
	ID        string `json:"id"`
	Code      string `json:"codigo"`
	EquipID   string `json:"equipoId"`
	Status    string `json:"estado"`
	CreatedAt string `json:"creada"`
	UpdatedAt string `json:"actualizada"`

	// Optional quote figures filled in by the budgeting screen.
	QuoteApprox     *float64 `json:"presupuestoAprox,omitempty"`
	PriceNew        *float64 `json:"precioNuevo,omitempty"`
	PriceSecondHand *float64 `json:"precioSegundaMano,omitempty"`
}

// Validate checks required Order fields.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if o.EquipID == "" {
		return fmt.Errorf("equipoId is required")
	}
	if o.Status == "" {
		return fmt.Errorf("estado is required")
	}
	valid := false
	for _, s := range OrderStatuses {
		if o.Status == s {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown estado %q", o.Status)
	}
	if o.CreatedAt == "" || o.UpdatedAt == "" {
		return fmt.Errorf("creada and actualizada are required")
	}
	return nil
}

// Touch sets UpdatedAt to the given instant in wire format.
func (o *Order) Touch(now time.Time) {
	o.UpdatedAt = FormatTime(now)
}

// Event is a log entry on an Order: a note, a test result, or a status change.
type Event struct {
	ID      string `json:"id"`
	OrderID string `json:"ordenId"`
	Kind    string `json:"tipo"`
	Text    string `json:"texto"`
	Date    string `json:"fecha"`
}

// Part is a spare part tracked against an Order.
type Part struct {
	ID       string  `json:"id"`
	OrderID  string  `json:"ordenId"`
	Name     string  `json:"nombre"`
	Quantity int     `json:"cantidad"`
	UnitCost float64 `json:"coste"`
	Status   string  `json:"estado"`
}

// Attachment is a binary file attached to an Order. Data travels base64
// encoded inside the JSON snapshot.
type Attachment struct {
	ID      string `json:"id"`
	OrderID string `json:"ordenId"`
	Name    string `json:"nombre"`
	Mime    string `json:"tipo"`
	Size    int64  `json:"tam"`
	Date    string `json:"fecha"`
	Data    []byte `json:"blob"`
}

// FormatTime renders a timestamp in the wire format used across all
// entities and the snapshot record.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses a wire-format timestamp. Returns the zero time when the
// value is empty or malformed; callers treat that as "no signal" rather
// than an error, matching how historical snapshots with odd timestamps are
// tolerated.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Older snapshots carry millisecond timestamps.
		t, err = time.Parse("2006-01-02T15:04:05.999Z07:00", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

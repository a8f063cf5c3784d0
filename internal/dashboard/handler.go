package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/reparalab/taller/internal/store"
	tsync "github.com/reparalab/taller/internal/sync"
)

// Handler subscribes to scheduler state transitions and store change
// notifications and rebroadcasts them as dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger

	unsubs []func()
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// Attach wires the handler to a scheduler and a store. Call Detach to
// remove the subscriptions.
func (h *Handler) Attach(sched *tsync.Scheduler, st *store.Store) {
	h.unsubs = append(h.unsubs, sched.OnStateChange(h.onStateChange))
	h.unsubs = append(h.unsubs, st.OnChanges(h.onTableChanges))
}

// Detach removes the handler's subscriptions.
func (h *Handler) Detach() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil
}

func (h *Handler) onStateChange(state tsync.State) {
	h.server.Broadcast(stateMessage(state))
}

func (h *Handler) onTableChanges(changes []store.Change) {
	tables := make([]string, 0, len(changes))
	for _, ch := range changes {
		tables = append(tables, ch.Table)
	}

	data, err := json.Marshal(TableChangeData{Tables: tables})
	if err != nil {
		h.logger.Printf("Failed to marshal table change: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeTableChange,
		Timestamp: time.Now(),
		Data:      data,
	})
}

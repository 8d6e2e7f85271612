package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/issac1998/pos-relay/internal/ledger"
)

// Store is the read side of the dispatch ledger
type Store interface {
	Get(guid string) (*ledger.Record, error)
	List(filter ledger.Filter) ([]*ledger.Record, error)
	GetStats() map[string]any
}

// StatusFunc reports per-channel assembly state, keyed by channel name
type StatusFunc func() map[string]string

// Handler exposes the relay's health and delivery history over HTTP
type Handler struct {
	store  Store
	status StatusFunc
}

// NewHandler creates a handler. store may be nil when the ledger is
// disabled; the dispatch routes then answer 503.
func NewHandler(store Store, status StatusFunc) *Handler {
	return &Handler{store: store, status: status}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.health)
	r.Route("/v1/dispatches", func(r chi.Router) {
		r.Get("/", h.listDispatches)     // GET /v1/dispatches?status=failed
		r.Get("/{guid}", h.getDispatch) // GET /v1/dispatches/{guid}
	})
}

type healthResponse struct {
	Status   string            `json:"status"`
	Ledger   bool              `json:"ledger"`
	Channels map[string]string `json:"channels,omitempty"`
	Storage  map[string]any    `json:"storage,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Ledger: h.store != nil}
	if h.store != nil {
		resp.Storage = h.store.GetStats()
	}
	if h.status != nil {
		resp.Channels = h.status()
	}
	respond(w, http.StatusOK, resp)
}

func (h *Handler) listDispatches(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{"error": "ledger disabled"})
		return
	}

	filter := ledger.All
	switch r.URL.Query().Get("status") {
	case "":
	case "failed":
		filter = ledger.FailedOnly
	case "sent":
		filter = ledger.SentOnly
	default:
		respond(w, http.StatusBadRequest, map[string]string{"error": "status must be sent or failed"})
		return
	}

	records, err := h.store.List(filter)
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []*ledger.Record{}
	}
	respond(w, http.StatusOK, records)
}

type dispatchResponse struct {
	*ledger.Record
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *Handler) getDispatch(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{"error": "ledger disabled"})
		return
	}

	guid := chi.URLParam(r, "guid")
	rec, err := h.store.Get(guid)
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec == nil {
		respond(w, http.StatusNotFound, map[string]string{"error": "no dispatch recorded for " + guid})
		return
	}

	body, err := rec.DecodePayload()
	if err != nil {
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, dispatchResponse{Record: rec, Payload: body})
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

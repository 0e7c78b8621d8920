package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ircservices/saslbroker/internal/mechanism"
	"github.com/ircservices/saslbroker/internal/session"
)

// Handlers implements the admin API's HTTP endpoints, grounded on the
// control plane's handlers.HealthHandler shape: a thin struct holding
// the collaborators it reports on, with one method per route.
type Handlers struct {
	sessions   *session.Store
	mechanisms *mechanism.Registry
	startTime  time.Time
}

// NewHandlers creates a Handlers backed by the running engine's session
// store and mechanism registry.
func NewHandlers(sessions *session.Store, mechanisms *mechanism.Registry) *Handlers {
	return &Handlers{
		sessions:   sessions,
		mechanisms: mechanisms,
		startTime:  time.Now(),
	}
}

// sessionView is the JSON projection of a session.Session exposed over
// the admin API; it omits mechanism state and any credential material,
// exposing only what an operator needs to identify and triage a session.
type sessionView struct {
	UID       string    `json:"uid"`
	Server    string    `json:"server"`
	Host      string    `json:"host"`
	IP        string    `json:"ip"`
	CertFP    string    `json:"certfp,omitempty"`
	Mechanism string    `json:"mechanism,omitempty"`
	AuthCID   string    `json:"authcid,omitempty"`
	AuthZID   string    `json:"authzid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newSessionView(s *session.Session) sessionView {
	v := sessionView{
		UID:       s.UID,
		Server:    s.Server,
		Host:      s.Host,
		IP:        s.IP,
		CertFP:    s.CertFP,
		AuthCID:   s.AuthCID,
		AuthZID:   s.AuthZID,
		CreatedAt: s.CreatedAt,
	}
	if s.Mechanism != nil {
		v.Mechanism = s.Mechanism.Name()
	}
	return v
}

// Liveness handles GET /health - unauthenticated process liveness probe.
func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"service":    "saslbrokerd",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
	}))
}

// ListSessions handles GET /api/v1/sessions - a snapshot of every
// in-flight SASL exchange known to this broker instance.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	snapshot := h.sessions.Snapshot()
	views := make([]sessionView, 0, len(snapshot))
	for _, s := range snapshot {
		views = append(views, newSessionView(s))
	}
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"sessions": views,
		"count":    len(views),
	}))
}

// GetSession handles GET /api/v1/sessions/{uid} - a single session's
// detail view.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	s, ok := h.sessions.Find(uid)
	if !ok {
		writeJSON(w, http.StatusNotFound, errResponse("session not found: "+uid))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(newSessionView(s)))
}

// DestroySession handles DELETE /api/v1/sessions/{uid} - force-destroys
// an in-flight session, e.g. one stuck after a client or server-link
// fault the reaper hasn't yet caught up to.
func (h *Handlers) DestroySession(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if _, ok := h.sessions.Find(uid); !ok {
		writeJSON(w, http.StatusNotFound, errResponse("session not found: "+uid))
		return
	}
	h.sessions.Destroy(uid)
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"uid":       uid,
		"destroyed": true,
	}))
}

// ListMechanisms handles GET /api/v1/mechanisms - the mechanism names
// currently registered and advertised in the SASL mechanism list.
func (h *Handlers) ListMechanisms(w http.ResponseWriter, r *http.Request) {
	names := h.mechanisms.Names()
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"mechanisms": names,
		"count":      len(names),
	}))
}

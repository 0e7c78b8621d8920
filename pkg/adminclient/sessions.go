package adminclient

import "time"

// Session is the client-side view of an in-progress or completed SASL
// session, matching internal/adminapi's sessionView JSON shape.
type Session struct {
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

type sessionListResponse struct {
	Sessions []Session `json:"sessions"`
	Count    int       `json:"count"`
}

type mechanismListResponse struct {
	Mechanisms []string `json:"mechanisms"`
	Count      int      `json:"count"`
}

// ListSessions returns every session currently tracked by the broker.
func (c *Client) ListSessions() ([]Session, error) {
	var resp sessionListResponse
	if err := c.get("/api/v1/sessions", &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSession returns a single session by its unique identifier.
func (c *Client) GetSession(uid string) (*Session, error) {
	var s Session
	if err := c.get("/api/v1/sessions/"+uid, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DestroySession forcibly terminates a session.
func (c *Client) DestroySession(uid string) error {
	return c.delete("/api/v1/sessions/"+uid, nil)
}

// ListMechanisms returns the names of all registered SASL mechanisms.
func (c *Client) ListMechanisms() ([]string, error) {
	var resp mechanismListResponse
	if err := c.get("/api/v1/mechanisms", &resp); err != nil {
		return nil, err
	}
	return resp.Mechanisms, nil
}

// Liveness checks whether the broker's admin API is reachable.
func (c *Client) Liveness() error {
	return c.get("/health", nil)
}

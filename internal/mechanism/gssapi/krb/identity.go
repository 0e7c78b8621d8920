package kerberos

import "fmt"

// PrincipalMapper converts an authenticated Kerberos principal to the
// authcid the broker should use for the rest of the login.
//
// Implementations map a principal such as "alice@EXAMPLE.COM" to the
// account identity services already knows about. A mapper is consulted
// once per successful AP-REQ verification, before the finalizer policy
// checks run.
type PrincipalMapper interface {
	// MapPrincipal maps a Kerberos principal name and realm to an authcid.
	//
	// ok is false if the principal has no known mapping; the caller treats
	// that the same as an authentication failure.
	MapPrincipal(principal, realm string) (authcid string, ok bool, err error)
}

// StaticMapper implements PrincipalMapper using a fixed lookup table,
// keyed by "principal@realm".
//
// This is the default for small deployments where the set of Kerberos
// principals allowed to authenticate is known ahead of time. Deployments
// wanting realm-wide mapping (principal name equals account name) can
// satisfy PrincipalMapper with IdentityMapper instead.
type StaticMapper struct {
	table map[string]string
}

// NewStaticMapper builds a StaticMapper from a principal@realm -> authcid table.
func NewStaticMapper(table map[string]string) *StaticMapper {
	if table == nil {
		table = make(map[string]string)
	}
	return &StaticMapper{table: table}
}

func (m *StaticMapper) MapPrincipal(principal, realm string) (string, bool, error) {
	authcid, ok := m.table[fmt.Sprintf("%s@%s", principal, realm)]
	return authcid, ok, nil
}

// IdentityMapper implements PrincipalMapper by using the Kerberos principal
// name itself as the authcid, ignoring the realm. This suits deployments
// where the KDC realm already corresponds one-to-one with the services
// account namespace.
type IdentityMapper struct{}

func (IdentityMapper) MapPrincipal(principal, _ string) (string, bool, error) {
	if principal == "" {
		return "", false, nil
	}
	return principal, true, nil
}

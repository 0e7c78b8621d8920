// Package sourceinfo implements the polymorphic attribution handle used to
// describe who a logged or hooked event came from.
//
// A SourceInfo is recreated, not mutated, whenever the identity-affecting
// state behind it changes (host/ip learned, mechanism selected, account
// resolved). Older references stay valid because Go's GC keeps the prior
// value alive for as long as something holds it; there is no destructor
// race to guard against the way the reference-counted C original has to.
package sourceinfo

import "fmt"

// SourceInfo attributes a SASL session to log lines and hook events.
type SourceInfo struct {
	UID    string
	Host   string
	IP     string
	Server string

	// HideServerNames suppresses the originating server name in the
	// description returned by SourceName, mirroring the
	// HIDE_SERVER_NAMES configuration option.
	HideServerNames bool

	// Account, if non-empty, is appended to SourceName once an identity
	// has been resolved for the session.
	Account string
}

// New creates a SourceInfo snapshot for the given session attributes.
func New(uid, host, ip, server string, hideServerNames bool) *SourceInfo {
	return &SourceInfo{
		UID:             uid,
		Host:            host,
		IP:              ip,
		Server:          server,
		HideServerNames: hideServerNames,
	}
}

// WithAccount returns a copy of si with Account set, used once a mechanism
// resolves an authentication identity mid-exchange.
func (si *SourceInfo) WithAccount(account string) *SourceInfo {
	if si == nil {
		return nil
	}
	cp := *si
	cp.Account = account
	return &cp
}

// Format renders the long form used in audit log lines:
// "SASL/<uid>:<host>[<ip>]:<server>".
func (si *SourceInfo) Format() string {
	if si == nil {
		return "SASL/?:?[?]:?"
	}
	uid, host, ip, server := orUnknown(si.UID), orUnknown(si.Host), orUnknown(si.IP), orUnknown(si.Server)
	return fmt.Sprintf("SASL/%s:%s[%s]:%s", uid, host, ip, server)
}

// SourceName renders the short, human-facing description used in notices
// and hook payloads: "<Unknown user on SERVER (via SASL):host>account".
func (si *SourceInfo) SourceName() string {
	if si == nil {
		return "<Unknown user (via SASL)>"
	}

	var description string
	if si.Server != "" && !si.HideServerNames {
		description = fmt.Sprintf("Unknown user on %s (via SASL)", si.Server)
	} else {
		description = "Unknown user (via SASL)"
	}

	if si.Host != "" {
		return fmt.Sprintf("<%s:%s>%s", description, si.Host, si.Account)
	}
	return fmt.Sprintf("<%s>%s", description, si.Account)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

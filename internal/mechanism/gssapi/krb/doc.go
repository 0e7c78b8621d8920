// Package kerberos manages the keytab and krb5.conf state backing the
// broker's GSSAPI SASL mechanism.
//
// It wraps gokrb5 to provide:
//   - Keytab and krb5.conf loading, with environment variable overrides
//   - Hot-reload of the keytab on file change, via polling
//   - Mapping of an authenticated Kerberos principal to a SASL authcid
//
// This package does not implement the GSS-API token exchange itself; see
// internal/mechanism/gssapi for the Mechanism that drives AP-REQ
// verification against the Provider's keytab.
package kerberos

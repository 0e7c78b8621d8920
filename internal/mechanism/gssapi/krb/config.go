package kerberos

import "time"

// Config is the subset of the broker's configuration needed to stand up a
// Provider. pkg/config embeds this directly as the Kerberos section so the
// rest of the broker never has to import this package's internals.
type Config struct {
	KeytabPath       string
	ServicePrincipal string
	Krb5Conf         string
	MaxClockSkew     time.Duration
}

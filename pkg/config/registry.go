package config

import (
	"log/slog"

	"github.com/ircservices/saslbroker/internal/mechanism"
	"github.com/ircservices/saslbroker/internal/mechanism/external"
	"github.com/ircservices/saslbroker/internal/mechanism/gssapi"
	"github.com/ircservices/saslbroker/internal/mechanism/gssapi/krb"
	"github.com/ircservices/saslbroker/internal/mechanism/plain"
)

// InitializeRegistry builds a mechanism.Registry from cfg, registering
// PLAIN and EXTERNAL against the given account store collaborator and,
// when cfg.Kerberos.Enabled, GSSAPI against a freshly constructed
// Kerberos Provider. store need only satisfy plain.Verifier and
// external.Resolver; accountstore.Store does both.
//
// This mirrors the teacher's InitializeRegistry orchestration shape
// (validate -> construct -> register -> log), adapted from assembling
// metadata stores and shares to assembling SASL mechanisms.
func InitializeRegistry(cfg *Config, store interface {
	plain.Verifier
	external.Resolver
}, log *slog.Logger) (*mechanism.Registry, error) {
	if log == nil {
		log = slog.Default()
	}

	reg := mechanism.NewRegistry(log)

	reg.Register(plain.New(store))
	reg.RegisterBinder(external.Name, external.NewFactory(store))

	if cfg.Kerberos.Enabled {
		provider, err := krb.NewProvider(cfg.Kerberos.ToKrbConfig())
		if err != nil {
			return nil, err
		}

		mapper := buildPrincipalMapper(cfg.Kerberos)
		reg.Register(gssapi.New(provider, mapper))

		log.Info("registered GSSAPI mechanism", "service_principal", cfg.Kerberos.ServicePrincipal)
	}

	return reg, nil
}

// buildPrincipalMapper builds the krb.PrincipalMapper for the GSSAPI
// mechanism from the Kerberos config section: a StaticMapper when
// principal_map entries are configured, otherwise IdentityMapper (the
// verified principal name is used as the authcid directly).
func buildPrincipalMapper(cfg KerberosConfig) krb.PrincipalMapper {
	if len(cfg.PrincipalMap) == 0 {
		return krb.IdentityMapper{}
	}
	return krb.NewStaticMapper(cfg.PrincipalMap)
}

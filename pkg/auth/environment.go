package auth

import "strings"

// Environment names a Schibsted account deployment. It resolves the issuer
// and the endpoint set every other component derives its URLs from.
type Environment string

const (
	EnvProCom Environment = "PRO"
	EnvProNo  Environment = "PRO_NO"
	EnvProFi  Environment = "PRO_FI"
	EnvProDk  Environment = "PRO_DK"
	EnvPre    Environment = "PRE"
	EnvDev    Environment = "DEV"
)

var environmentIssuers = map[Environment]string{
	EnvProCom: "https://login.schibsted.com",
	EnvProNo:  "https://payment.schibsted.no",
	EnvProFi:  "https://login.schibsted.fi",
	EnvProDk:  "https://login.schibsted.dk",
	EnvPre:    "https://identity-pre.schibsted.com",
	EnvDev:    "https://identity-dev.schibsted.com",
}

// Issuer returns the base URL for the environment, empty for unknown names.
func (e Environment) Issuer() string {
	return environmentIssuers[e]
}

// SDRNNamespace scopes stable resource names per environment so a PRE user
// never compares equal to a PRO user with the same numeric id.
func (e Environment) SDRNNamespace() string {
	switch e {
	case EnvPre:
		return "schibsted-pre"
	case EnvDev:
		return "schibsted-dev"
	default:
		return "schibsted"
	}
}

// ClientConfig identifies one client against one environment.
type ClientConfig struct {
	Environment Environment
	ClientID    string
	RedirectURI string

	// Issuer overrides the environment issuer; used by tests and
	// self-hosted setups.
	Issuer string
}

func (c ClientConfig) issuer() string {
	if c.Issuer != "" {
		return strings.TrimSuffix(c.Issuer, "/")
	}

	return c.Environment.Issuer()
}

func (c ClientConfig) authorizationEndpoint() string { return c.issuer() + "/oauth/authorize" }
func (c ClientConfig) tokenEndpoint() string         { return c.issuer() + "/oauth/token" }
func (c ClientConfig) jwksEndpoint() string          { return c.issuer() + "/oauth/jwks" }
func (c ClientConfig) sessionExchangeEndpoint() string {
	return c.issuer() + "/api/2/oauth/exchange"
}
func (c ClientConfig) profileEndpoint(userUUID string) string {
	return c.issuer() + "/api/2/user/" + userUUID
}
func (c ClientConfig) frontendJWTEndpoint() string { return c.issuer() + "/api/2/frontend/jwt" }

// SDRN builds the stable resource name for a user id within this
// environment.
func (c ClientConfig) SDRN(userID string) string {
	return "sdrn:" + c.Environment.SDRNNamespace() + ":user:" + userID
}

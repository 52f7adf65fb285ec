// Package socrata implements the Socrata portal driver: discovery
// iteration, the SoQL builder, v2/v3 row access, and metadata
// normalization.
package socrata

import (
	"strings"

	"github.com/opendatacatalog/catalogsync/internal/secrets"
)

// Credential is a resolved v3 auth credential: either a Basic-auth
// key/secret pair, an app token, or both. Never logged; QueryV3Client turns
// it into an Authorization or X-App-Token request header and never formats
// it into a message.
type Credential struct {
	KeyID    string
	Secret   string
	AppToken string
}

// HasBasic reports whether a Basic-auth credential resolved.
func (c Credential) HasBasic() bool { return c.KeyID != "" && c.Secret != "" }

// resolveV3Credential implements the dataset → host → global precedence
// from the external-interfaces section: dataset-scoped keys are named
// SOCRATA__<HOST>__<ID_LOWER_NO_DASH>__V3_KEY_{ID,SECRET}, host-scoped
// SOCRATA__<HOST>__V3_KEY_{ID,SECRET}, global SOCRATA_V3_KEY_{ID,SECRET}.
// An app token follows the same precedence with a _APP_TOKEN suffix.
func resolveV3Credential(keys secrets.Accessor, host, datasetID string) Credential {
	hostKey := envHost(host)
	datasetKey := strings.ToLower(strings.ReplaceAll(datasetID, "-", ""))

	prefixes := []string{
		"SOCRATA__" + hostKey + "__" + datasetKey + "__V3_KEY_",
		"SOCRATA__" + hostKey + "__V3_KEY_",
		"SOCRATA_V3_KEY_",
	}
	var cred Credential
	for _, p := range prefixes {
		id, idOK := keys.Lookup(p + "ID")
		secret, secretOK := keys.Lookup(p + "SECRET")
		if idOK && secretOK {
			cred.KeyID, cred.Secret = id, secret
			break
		}
	}

	tokenPrefixes := []string{
		"SOCRATA__" + hostKey + "__" + datasetKey + "__APP_TOKEN",
		"SOCRATA__" + hostKey + "__APP_TOKEN",
		"SOCRATA_APP_TOKEN",
	}
	for _, k := range tokenPrefixes {
		if tok, ok := keys.Lookup(k); ok {
			cred.AppToken = tok
			break
		}
	}
	return cred
}

// envHost upper-cases host and replaces non-alphanumerics with "_", matching
// the region resolver's per-host override key transform.
func envHost(host string) string {
	upper := strings.ToUpper(host)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

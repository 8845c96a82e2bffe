// Package auth verifies OpenID Connect ID tokens against the configured
// providers. Identity resolution stops here; account lookup is the
// caller's business.
package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/globals"
)

// Authenticate verifies a given OIDC ID-Token using the configured OIDC provider.
// It returns the account id if verification was successful (or an empty string
// if no provider was configured). The account id is the "email" claim; it must
// be unique across the user base.
func Authenticate(idToken, oidcProvider string, cfg *config.Config) (string, error) {
	if idToken == "" || len(cfg.OIDCConfigs) == 0 {
		return "", nil
	}
	var oidcConf *config.OIDCConfig
	for i := range cfg.OIDCConfigs {
		if cfg.OIDCConfigs[i].Name == oidcProvider {
			oidcConf = &cfg.OIDCConfigs[i]
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", oidcProvider)
		return "", nil
	}
	provider, err := oidc.NewProvider(context.Background(), oidcConf.ProviderUrl)
	if err != nil {
		return "", err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(context.Background(), idToken)
	if err != nil {
		globals.AppLogger.Debug("could not verify id token", "error", err)
		return "", err
	}

	claims := struct {
		Email string `json:"email"`
	}{}
	if err := verifiedIdToken.Claims(&claims); err != nil {
		return "", err
	}
	return claims.Email, nil
}

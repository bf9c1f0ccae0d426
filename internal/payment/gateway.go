// Package payment talks to the external payment processor. Processor wire formats stay in this package.
package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kampus-akademi/backend/config"
	"github.com/kampus-akademi/backend/internal/apperr"
)

// Token is the grant returned by the processor after a successful authorization.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Gateway runs the processor's OAuth2 authorization-code flow.
type Gateway struct {
	oauth  *oauth2.Config
	client *http.Client
}

// NewGateway builds a gateway from injected credentials and endpoints.
func NewGateway(cfg config.GatewayConfig) *Gateway {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: &http.Client{Timeout: timeout},
	}
}

// AuthorizationURL returns the processor URL the buyer is sent to. It is a pure function of state and config.
func (g *Gateway) AuthorizationURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token with a single POST to the token endpoint.
func (g *Gateway) Exchange(ctx context.Context, code, state string) (*Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.InvalidRequest("missing authorization code")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("state", state))
	if err != nil {
		return nil, apperr.Gateway(processorMessage(err), err)
	}
	out := &Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return out, nil
}

func processorMessage(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch {
		case re.ErrorDescription != "":
			return re.ErrorDescription
		case re.ErrorCode != "":
			return re.ErrorCode
		case re.Response != nil:
			return "token endpoint returned " + re.Response.Status
		}
	}
	return "token exchange failed"
}

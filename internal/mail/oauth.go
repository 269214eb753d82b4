package mail

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// gmailAccessToken exchanges a stored refresh token for a short-lived access
// token at configure time. A revoked or expired refresh token is reported as
// TokenExpiredError so the caller can fall back to app-password mode.
func gmailAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}

	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant" {
			return "", &TokenExpiredError{Err: err}
		}
		return "", fmt.Errorf("oauth2 token exchange: %w", err)
	}
	return tok.AccessToken, nil
}

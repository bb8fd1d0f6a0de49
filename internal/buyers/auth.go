package buyers

import (
	"encoding/base64"
	"net/http"

	"github.com/thenexusengine/tne_leadflow/internal/storage"
)

// Auth scheme types accepted in buyer auth_config
const (
	AuthTypeBearer = "bearer"
	AuthTypeBasic  = "basic"
	AuthTypeHeader = "header"
)

// applyAuth sets authentication headers per the buyer's configured scheme.
// Unknown or empty types leave the request unauthenticated.
func applyAuth(headers http.Header, auth storage.AuthConfig) {
	switch auth.Type {
	case AuthTypeBearer:
		if auth.Token != "" {
			headers.Set("Authorization", "Bearer "+auth.Token)
		}
	case AuthTypeBasic:
		if auth.Username != "" {
			creds := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
			headers.Set("Authorization", "Basic "+creds)
		}
	case AuthTypeHeader:
		if auth.HeaderName != "" {
			headers.Set(auth.HeaderName, auth.HeaderVal)
		}
	}
}

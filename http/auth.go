package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"golang.org/x/net/websocket"
)

const clientIDHeader = httpcmn.HeaderPosemeshClientID

// ErrTypeUnauthorized is the type of the error returned when a request does not
// carry the expected token.
const ErrTypeUnauthorized = "unauthorized"

// VerifyAuthToken returns a websocket handshake that rejects the connections
// not authorized with the given token. An empty token authorizes every
// connection.
func VerifyAuthToken(token string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := verifyAuthToken(token, r); err != nil {
			logs.WithClientID(r.Header.Get(clientIDHeader)).Error(err)
			return err
		}
		return nil
	}
}

// VerifyAuthTokenHandler responds with 401 to the requests not authorized with
// the given token. An empty token authorizes every request.
func VerifyAuthTokenHandler(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verifyAuthToken(token, r); err != nil {
			logs.WithClientID(r.Header.Get(clientIDHeader)).Error(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func verifyAuthToken(token string, r *http.Request) error {
	if token == "" {
		return nil
	}

	userToken := httpcmn.GetUserTokenFromHTTPRequest(r)
	if subtle.ConstantTimeCompare([]byte(token), []byte(userToken)) != 1 {
		return errors.New("invalid auth token").
			WithType(ErrTypeUnauthorized).
			WithTag("path", r.URL.Path)
	}
	return nil
}

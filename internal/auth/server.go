package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"ridemetrics/internal/store"
)

const (
	// CallbackPort is the port for the OAuth callback server
	CallbackPort = 8089
	// AuthTimeout is how long to wait for the user to complete auth
	AuthTimeout = 5 * time.Minute
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>Strava connected</title></head>
<body style="font-family: system-ui; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0;">
<div style="text-align: center;">
<h1 style="color: #10B981;">Connected</h1>
<p>You can close this window and return to the terminal.</p>
</div>
</body>
</html>`

// Connect runs the OAuth flow for user and stores the resulting tokens
func Connect(ctx context.Context, cfg *oauth2.Config, st *store.Store, user string, out io.Writer) (*AuthResult, error) {
	result, err := Authenticate(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	if err := st.SaveAuth(user, result.StoreAuth()); err != nil {
		return nil, fmt.Errorf("saving tokens: %w", err)
	}
	return result, nil
}

// Authenticate runs the OAuth flow with a local callback server. The
// authorization URL is written to out.
func Authenticate(ctx context.Context, cfg *oauth2.Config, out io.Writer) (*AuthResult, error) {
	// Generate state for CSRF protection
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, codeChan, errChan))

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", CallbackPort))
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To connect Strava, open this URL in your browser:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s\n", authURL)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Waiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		shutdownServer(server)
		return nil, err
	case <-time.After(AuthTimeout):
		shutdownServer(server)
		return nil, fmt.Errorf("authentication timeout after %v", AuthTimeout)
	case <-ctx.Done():
		shutdownServer(server)
		return nil, ctx.Err()
	}

	shutdownServer(server)

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}

	return &AuthResult{
		Token:     token,
		AthleteID: ExtractAthleteID(token),
	}, nil
}

// callbackHandler validates the redirect and hands the code to codeChan.
// Both channels must be buffered.
func callbackHandler(state string, codeChan chan<- string, errChan chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			send(errChan, fmt.Errorf("state mismatch - possible CSRF attack"))
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}

		if errMsg := q.Get("error"); errMsg != "" {
			send(errChan, fmt.Errorf("auth error: %s", errMsg))
			http.Error(w, "Authentication failed", http.StatusBadRequest)
			return
		}

		code := q.Get("code")
		if code == "" {
			send(errChan, fmt.Errorf("no code in callback"))
			http.Error(w, "No authorization code", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, successPage)
		send(codeChan, code)
	})
}

// send delivers v unless the channel already holds a value
func send[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// generateState creates a random state string for CSRF protection
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// shutdownServer gracefully shuts down the HTTP server
func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

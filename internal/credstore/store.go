// Package credstore owns the persisted Trakt OAuth token: one JSON file,
// read on demand, rewritten atomically on refresh.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"trakt-toggl-sync/internal/domain"
)

// ExpirySkew is how long before the recorded expiry a token is already
// treated as expired, so a request never starts with a token about to die.
const ExpirySkew = 60 * time.Minute

// Store supplies a valid token on demand, refreshing through the OAuth
// config and persisting the result before handing it out. It assumes the
// token file was bootstrapped out of band (see the -login flow); a missing
// file is a configuration error, never a prompt.
type Store struct {
	path string
	conf *oauth2.Config
	skew time.Duration
	log  *slog.Logger
	now  func() time.Time

	tok *oauth2.Token // validated once per run, then reused
}

func New(path string, conf *oauth2.Config, log *slog.Logger) *Store {
	return &Store{
		path: path,
		conf: conf,
		skew: ExpirySkew,
		log:  log,
		now:  time.Now,
	}
}

// fileToken is the on-disk shape, shared with the deployment that mounts it.
type fileToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Token returns a token guaranteed to outlive the skew margin. At most one
// refresh happens per run; later calls reuse the result.
func (s *Store) Token(ctx context.Context) (*oauth2.Token, error) {
	if s.tok != nil && s.fresh(s.tok) {
		return s.tok, nil
	}

	tok, err := s.load()
	if err != nil {
		return nil, err
	}
	if s.fresh(tok) {
		s.tok = tok
		return tok, nil
	}

	if tok.RefreshToken == "" {
		return nil, &domain.AuthError{Reason: "token expired and no refresh token on disk"}
	}
	s.log.Info("refreshing trakt token", slog.Time("expired_at", tok.Expiry))
	// A token with only the refresh half forces TokenSource to hit the
	// authorization server instead of returning the stale access token.
	refreshed, err := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return nil, &domain.AuthError{Reason: "token refresh rejected", Err: err}
	}
	if err := s.Save(refreshed); err != nil {
		return nil, err
	}
	s.log.Info("trakt token refreshed", slog.Time("expires_at", refreshed.Expiry))
	s.tok = refreshed
	return refreshed, nil
}

// Save atomically replaces the token file: temp file in the same directory,
// 0600, then rename, so a concurrent reader never sees a torn write.
func (s *Store) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(fileToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
	})
	if err != nil {
		return &domain.ConfigError{Reason: "encoding token file", Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &domain.ConfigError{Reason: "writing token file", Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return &domain.ConfigError{Reason: "restricting token file permissions", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &domain.ConfigError{Reason: "writing token file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.ConfigError{Reason: "writing token file", Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &domain.ConfigError{Reason: "replacing token file", Err: err}
	}
	s.tok = tok
	return nil
}

func (s *Store) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.ConfigError{Reason: "token file " + s.path + " not found; bootstrap with -login first"}
	}
	if err != nil {
		return nil, &domain.ConfigError{Reason: "reading token file " + s.path, Err: err}
	}
	var ft fileToken
	if err := json.Unmarshal(data, &ft); err != nil {
		return nil, &domain.ConfigError{Reason: "token file " + s.path + " is malformed", Err: err}
	}
	if ft.AccessToken == "" && ft.RefreshToken == "" {
		return nil, &domain.ConfigError{Reason: "token file " + s.path + " holds no tokens"}
	}
	return &oauth2.Token{
		AccessToken:  ft.AccessToken,
		RefreshToken: ft.RefreshToken,
		Expiry:       ft.ExpiresAt,
	}, nil
}

func (s *Store) fresh(tok *oauth2.Token) bool {
	if tok.AccessToken == "" || tok.Expiry.IsZero() {
		return false
	}
	return s.now().Before(tok.Expiry.Add(-s.skew))
}

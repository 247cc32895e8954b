package oauthsession

import (
	"time"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

const (
	DefaultKeyringService = "returnbox"

	keyAccessToken  = "gmail_access_token"
	keyRefreshToken = "gmail_refresh_token"
	keyExpiry       = "gmail_token_expiration"
	keyEmail        = "gmail_user_email"
)

// KeyringStore keeps the session in the OS secret store, one entry per field.
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

// Load returns (nil, nil) when nothing has been stored yet.
func (k *KeyringStore) Load() (*Session, error) {
	access, err := k.get(keyAccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := k.get(keyRefreshToken)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, nil
	}
	s := &Session{AccessToken: access, RefreshToken: refresh}

	exp, err := k.get(keyExpiry)
	if err != nil {
		return nil, err
	}
	if exp != "" {
		if t, perr := time.Parse(time.RFC3339, exp); perr == nil {
			s.Expiry = t
		}
	}
	if s.Email, err = k.get(keyEmail); err != nil {
		return nil, err
	}
	return s, nil
}

func (k *KeyringStore) Save(s *Session) error {
	if s == nil {
		return k.Clear()
	}
	fields := map[string]string{
		keyAccessToken:  s.AccessToken,
		keyRefreshToken: s.RefreshToken,
		keyExpiry:       s.Expiry.UTC().Format(time.RFC3339),
		keyEmail:        s.Email,
	}
	for key, v := range fields {
		if v == "" {
			if err := k.delete(key); err != nil {
				return err
			}
			continue
		}
		if err := keyring.Set(k.service, key, v); err != nil {
			return errors.Wrapf(err, "keyring set %s", key)
		}
	}
	return nil
}

func (k *KeyringStore) Clear() error {
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyExpiry, keyEmail} {
		if err := k.delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (k *KeyringStore) get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "keyring get %s", key)
	}
	return v, nil
}

func (k *KeyringStore) delete(key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrapf(err, "keyring delete %s", key)
	}
	return nil
}

package service

import (
	"errors"
	"log/slog"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/pkg/utils"
)

// CredentialResolver turns a stored connection into usable tokens. Kept
// as an interface so the dispatcher never touches key material.
type CredentialResolver interface {
	Resolve(conn *models.Connection) (string, error)
	ResolveRefresh(conn *models.Connection) (string, error)
}

var ErrNoUsableKey = errors.New("no configured key decrypts this credential")

// chainResolver tries the current secret key, then each legacy key in
// order; the first successful decrypt wins. Connections written before a
// key rotation keep working without a migration.
type chainResolver struct {
	keys [][]byte
}

func NewCredentialResolver(currentKey string, legacyKeys []string) CredentialResolver {
	keys := make([][]byte, 0, len(legacyKeys)+1)
	keys = append(keys, []byte(currentKey))
	for _, k := range legacyKeys {
		keys = append(keys, []byte(k))
	}
	return &chainResolver{keys: keys}
}

func (r *chainResolver) Resolve(conn *models.Connection) (string, error) {
	return r.decrypt(conn.ID, conn.AccessToken)
}

func (r *chainResolver) ResolveRefresh(conn *models.Connection) (string, error) {
	return r.decrypt(conn.ID, conn.RefreshToken)
}

func (r *chainResolver) decrypt(connID int64, ciphertext string) (string, error) {
	for _, key := range r.keys {
		token, err := utils.Decrypt(ciphertext, key)
		if err == nil {
			return token, nil
		}
	}
	slog.Info("credential decrypt failed for connection", "connection_id", connID)
	return "", ErrNoUsableKey
}

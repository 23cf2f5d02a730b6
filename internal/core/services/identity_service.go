package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type identityResolver struct {
	pepper []byte
}

func NewIdentityResolver(pepper string) (ports.IdentityResolver, error) {
	if pepper == "" {
		return nil, errors.New("identity pepper is required")
	}
	return &identityResolver{pepper: []byte(pepper)}, nil
}

func (r *identityResolver) Resolve(caller domain.Caller) (domain.Identity, error) {
	if caller.Authenticated() {
		h := hmac.New(sha256.New, r.pepper)
		h.Write([]byte(caller.PrincipalID))
		return domain.Identity{
			Key:  hex.EncodeToString(h.Sum(nil)),
			Kind: domain.IdentityAuthenticated,
		}, nil
	}

	if caller.NetworkAddress == "" {
		return domain.Identity{}, domain.ErrIdentityUnresolved
	}

	// Shared networks with the same signature collide. Known limitation.
	sum := sha256.Sum256([]byte(caller.NetworkAddress + "|" + caller.ClientSignature))
	return domain.Identity{
		Key:  hex.EncodeToString(sum[:]),
		Kind: domain.IdentityAnonymous,
	}, nil
}

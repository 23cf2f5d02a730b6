package domain

type IdentityKind string

const (
	IdentityAuthenticated IdentityKind = "authenticated"
	IdentityAnonymous     IdentityKind = "anonymous"
)

// Caller is what the transport hands to the identity resolver. Either
// PrincipalID is set, or the NetworkAddress/ClientSignature pair is.
type Caller struct {
	PrincipalID     string
	NetworkAddress  string
	ClientSignature string
}

func (c Caller) Authenticated() bool {
	return c.PrincipalID != ""
}

type Identity struct {
	Key  string
	Kind IdentityKind
}

// DedupKey returns the uniqueness key this identity is deduplicated under.
func (i Identity) DedupKey() DedupKey {
	if i.Kind == IdentityAuthenticated {
		return AuthenticatedKey{IdentityKey: i.Key}
	}
	return AnonymousKey{IdentityKey: i.Key}
}

// DedupKey is a closed union: AuthenticatedKey or AnonymousKey. Two keys
// of different kinds never compare equal even if their hashes do.
type DedupKey interface {
	Kind() IdentityKind
	Key() string
	dedupKey()
}

type AuthenticatedKey struct {
	IdentityKey string
}

func (k AuthenticatedKey) Kind() IdentityKind { return IdentityAuthenticated }
func (k AuthenticatedKey) Key() string        { return k.IdentityKey }
func (AuthenticatedKey) dedupKey()            {}

// AnonymousKey carries the hash of (network address, client signature);
// raw addresses never reach the store.
type AnonymousKey struct {
	IdentityKey string
}

func (k AnonymousKey) Kind() IdentityKind { return IdentityAnonymous }
func (k AnonymousKey) Key() string        { return k.IdentityKey }
func (AnonymousKey) dedupKey()            {}

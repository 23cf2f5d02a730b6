package ports

import "github.com/vncsmyrnk/tally/internal/core/domain"

type IdentityResolver interface {
	Resolve(caller domain.Caller) (domain.Identity, error)
}

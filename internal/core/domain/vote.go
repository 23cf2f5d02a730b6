package domain

import (
	"time"

	"github.com/google/uuid"
)

type Value string

const (
	ValueAgree    Value = "agree"
	ValueDisagree Value = "disagree"
	ValueNeutral  Value = "neutral"
)

// Values lists every supported reaction in display order.
var Values = []Value{ValueAgree, ValueDisagree, ValueNeutral}

func (v Value) Valid() bool {
	for _, known := range Values {
		if v == known {
			return true
		}
	}
	return false
}

type Vote struct {
	StatementID  uuid.UUID    `json:"statement_id"`
	IdentityKey  string       `json:"-"`
	IdentityKind IdentityKind `json:"identity_kind"`
	Value        Value        `json:"value"`
	Region       *string      `json:"region,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// VoteWrite is the input to a single upsert against the vote store.
type VoteWrite struct {
	StatementID uuid.UUID
	Identity    Identity
	Value       Value
	Region      *string
}

type WriteResult struct {
	PreviousValue *Value `json:"previous_value"`
	NewValue      Value  `json:"new_value"`
}

// Changed reports whether the write moved the vote between buckets.
func (r WriteResult) Changed() bool {
	return r.PreviousValue == nil || *r.PreviousValue != r.NewValue
}

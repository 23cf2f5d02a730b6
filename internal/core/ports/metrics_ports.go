package ports

import "github.com/vncsmyrnk/tally/internal/core/domain"

type Metrics interface {
	VoteWritten(kind domain.IdentityKind, outcome string)
	WriteConflictRetried()
	PublishFailed()
	SubscriberEvicted()
	StreamOpened()
	StreamClosed()
}

type NopMetrics struct{}

func (NopMetrics) VoteWritten(domain.IdentityKind, string) {}
func (NopMetrics) WriteConflictRetried()                   {}
func (NopMetrics) PublishFailed()                          {}
func (NopMetrics) SubscriberEvicted()                      {}
func (NopMetrics) StreamOpened()                           {}
func (NopMetrics) StreamClosed()                           {}

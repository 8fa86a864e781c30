package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the inbox pipeline. Registered on the default registry and
// exposed through the /metrics endpoint.
var (
	UnreadPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_admin_unread_polls_total",
		Help: "Unread-count polls against the relay, by platform and outcome.",
	}, []string{"platform", "outcome"})

	StaleUnreadResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_admin_unread_stale_responses_total",
		Help: "Unread poll responses discarded because a newer poll already applied.",
	}, []string{"platform"})

	RelaySends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_admin_relay_sends_total",
		Help: "Operator sends forwarded to the relay, by platform and outcome.",
	}, []string{"platform", "outcome"})

	Aggregations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_admin_conversation_aggregations_total",
		Help: "Conversation list aggregations computed, by platform.",
	}, []string{"platform"})

	MessagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_admin_messages_fetched_total",
		Help: "Messages read from the store during snapshot refreshes.",
	}, []string{"platform"})
)

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

package gateway

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// providerBreakers is the process-wide provider health state: one circuit
// breaker per provider name. A provider whose breaker is open is skipped
// by the fallback chain until the breaker half-opens.
type providerBreakers struct {
	breakers map[string]*gobreaker.CircuitBreaker
}

func newProviderBreakers(names []string) *providerBreakers {
	pb := &providerBreakers{breakers: make(map[string]*gobreaker.CircuitBreaker, len(names))}
	for _, name := range names {
		name := name
		pb.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-provider-" + name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				slog.Warn("LLM provider breaker state change",
					"provider", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return pb
}

// available reports whether the provider should be tried at all.
func (pb *providerBreakers) available(name string) bool {
	cb, ok := pb.breakers[name]
	if !ok {
		return true
	}
	return cb.State() != gobreaker.StateOpen
}

// observe runs fn under the provider's breaker so failures accumulate.
func (pb *providerBreakers) observe(name string, fn func() (string, error)) (string, error) {
	cb, ok := pb.breakers[name]
	if !ok {
		return fn()
	}
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	text, _ := out.(string)
	return text, nil
}

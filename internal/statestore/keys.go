package statestore

import "fmt"

// Key builders implementing the exact shared-state key schema.

func CircuitStateKey(provider string) string    { return fmt.Sprintf("circuit:%s:state", provider) }
func CircuitFailuresKey(provider string) string  { return fmt.Sprintf("circuit:%s:failures", provider) }
func CircuitSuccessesKey(provider string) string { return fmt.Sprintf("circuit:%s:successes", provider) }
func CircuitLastFailKey(provider string) string  { return fmt.Sprintf("circuit:%s:last_fail", provider) }

func BulkheadCounterKey(provider string) string { return fmt.Sprintf("bulkhead:%s:counter", provider) }

func RateLimitMinuteKey(clientKey, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s:minute", clientKey, endpoint)
}

func RateLimitHourKey(clientKey, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s:hour", clientKey, endpoint)
}

func TokenBudgetKey(clientKey, yyyyMMdd string) string {
	return fmt.Sprintf("token_budget:%s:%s", clientKey, yyyyMMdd)
}

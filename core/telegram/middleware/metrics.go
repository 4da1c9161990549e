package middleware

import (
	tghelpers "github.com/m3rciful/volunteerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const countersKey = "counters"

// MessageMetricsMiddleware attaches counters for outbound messages to the
// update context. Senders that receive the context record into them.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := c.Get(countersKey).(*tghelpers.Counters); ok {
			return next(c)
		}
		counters := &tghelpers.Counters{}
		c.Set(countersKey, counters)
		tghelpers.StoreContext(c, tghelpers.WithCounters(tghelpers.BuildContext(c), counters))
		return next(c)
	}
}

// GetCounters reads message count and keyboard presence flags from context.
func GetCounters(c tele.Context) (int, bool) {
	counters, _ := c.Get(countersKey).(*tghelpers.Counters)
	return counters.Snapshot()
}

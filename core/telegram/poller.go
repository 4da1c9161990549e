package telegram

import (
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/volunteerbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPollTimeout = 10 * time.Second

// longPollTimeout returns the configured getUpdates timeout or the default.
func longPollTimeout(cfg *coreconfig.Config) time.Duration {
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultLongPollTimeout
}

// newPoller picks a webhook listener or a long poller according to the run mode.
// The config is expected to be normalized.
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: longPollTimeout(cfg)}
}

package callbacks

import (
	"fmt"
	"strconv"

	"github.com/m3rciful/volunteerbot/core/conversation"
)

// Data formats an "<action>=<value>" payload.
func Data(action string, value any) string {
	return fmt.Sprintf("%s=%v", action, value)
}

// Int64 parses the value of an "<action>=<id>" payload.
func Int64(payload string) (string, int64, error) {
	action, value := conversation.SplitPayload(payload)
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return action, 0, fmt.Errorf("callback %q: %w", payload, err)
	}
	return action, id, nil
}

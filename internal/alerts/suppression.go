package alerts

import (
	"strconv"
	"strings"
	"time"

	"relumon/internal/models"
)

// IsSuppressed reports whether the notice's mute-until timestamp
// (epoch milliseconds) lies strictly after now.
func IsSuppressed(notice *models.Notice, now time.Time) bool {
	if notice == nil {
		return false
	}
	raw := strings.TrimSpace(notice.InvalidEndTime)
	if raw == "" {
		return false
	}
	endMillis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return endMillis > now.UnixMilli()
}

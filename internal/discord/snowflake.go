package discord

import (
	"strconv"
	"time"
)

// Discord snowflake epoch, milliseconds since the Unix epoch.
const snowflakeEpochMS = 1420070400000

// snowflakeTime extracts the creation timestamp embedded in a snowflake id.
// Returns the zero time for ids that do not parse.
func snowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ms := int64(n>>22) + snowflakeEpochMS
	return time.UnixMilli(ms).UTC()
}

package scadabridge

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TimeApplication keeps the time the master synchronized the outstation to, as an offset from
// the local clock.
type TimeApplication struct {
	offsetMs atomic.Int64
	now      func() time.Time
}

func NewTimeApplication() *TimeApplication {
	return &TimeApplication{now: time.Now}
}

func (a *TimeApplication) SupportsWriteAbsoluteTime() bool {
	return true
}

func (a *TimeApplication) WriteAbsoluteTime(msSinceEpoch uint64) bool {
	offset := int64(msSinceEpoch) - a.now().UnixMilli()
	a.offsetMs.Store(offset)
	LogInfo("", "TimeSync", fmt.Sprintf("master time %s, offset %d ms",
		time.UnixMilli(int64(msSinceEpoch)).UTC().Format(time.RFC3339), offset))
	return true
}

// UTCTime returns the synchronized time in ms since the epoch.
func (a *TimeApplication) UTCTime() uint64 {
	return uint64(a.now().UnixMilli() + a.offsetMs.Load())
}

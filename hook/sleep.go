package hook

import (
	"time"

	oc "github.com/open-coroutine/opencoroutine-go"
)

// Sleep parks the calling coroutine for d, the hooked equivalent of
// usleep/nanosleep (§4.11's original motivating case: a blocking sleep
// call that would otherwise stall the whole host thread). Unlike Read/
// Write/Accept/Connect there is no fd or non-blocking adapter involved,
// only the timeout-arming decorator, so this delegates straight to the
// Yielder's own Delay.
func Sleep(y *oc.Yielder, d time.Duration) {
	y.Delay(d)
}

package reactor

// RunOrSubmit runs fn inline if the calling goroutine already is r's worker
// goroutine, otherwise submits it. Used by the pipeline and channel packages
// for operations that must happen on the channel's reactor but are allowed
// to be invoked from any thread (spec §4.3, §4.4): a caller already on the
// reactor gets synchronous, same-tick execution instead of an unnecessary
// queue round-trip.
func RunOrSubmit(r *Reactor, fn Task) {
	if fn == nil {
		return
	}
	if r == nil {
		// No reactor owns the channel yet (pre-registration pipeline setup);
		// nothing else can be racing, so run inline.
		fn()
		return
	}
	if r.InEventLoop() {
		fn()
		return
	}
	_ = r.Submit(fn)
}

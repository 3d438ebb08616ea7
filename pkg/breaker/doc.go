// Package breaker implements per-provider circuit breakers.
//
// A Breaker watches the outcomes of calls to one upstream and stops sending
// traffic to it once it looks unhealthy:
//
//   - CLOSED: calls flow normally. The breaker opens when FailureThreshold
//     failures land inside the rolling Window, or when more than
//     FailureRatio of the last RatioWindow calls failed.
//   - OPEN: Allow fails immediately with *OpenError. After OpenDuration the
//     next access moves the breaker to HALF_OPEN. There is no timer; the
//     transition is evaluated lazily.
//   - HALF_OPEN: up to HalfOpenMaxCalls trial calls are admitted at a time.
//     HalfOpenSuccessThreshold consecutive successes close the breaker, any
//     failure reopens it.
//
// Callers bracket every upstream call:
//
//	if err := b.Allow(); err != nil {
//	    return err // fail fast, no network call
//	}
//	resp, err := call()
//	if err != nil {
//	    b.RecordFailure()
//	} else {
//	    b.RecordSuccess()
//	}
//
// A call that was admitted but never reached the upstream (for example the
// caller cancelled while waiting for quota) must call Release instead, so
// the half-open trial slot is returned without counting an outcome.
package breaker

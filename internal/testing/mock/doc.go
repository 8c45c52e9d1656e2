// Package mock provides test doubles for authhub components.
//
//   - MockClock: a controllable clock whose timers fire when time is advanced,
//     used to test expiry arithmetic, backoff and proactive scheduling without
//     waiting for real time to pass.
//   - IdentityServer: an httptest-backed fake of the identity service's auth
//     endpoints with refresh-token rotation, reuse detection, error
//     simulation and per-endpoint call counters.
package mock

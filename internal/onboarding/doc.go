// Package onboarding drives a freshly activated agent through its fixed
// getting-to-know-you phases. Machine is a pure transition function; Service
// loads the activation, advances it, runs the one-time completion effects and
// saves the result under optimistic concurrency, retrying on version
// conflicts. Once an activation is operational, messages are handed to a
// Router for intent classification and skill admission.
package onboarding

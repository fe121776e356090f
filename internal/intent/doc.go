// Package intent classifies operational messages as conversation or skill
// invocation and screens them for requests that only a certified professional
// may handle.
package intent

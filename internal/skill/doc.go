// Package skill holds the static skill catalog of every agent type: which
// capabilities are native or locked, which are critical, and the input schema
// each one accepts. The registry is immutable once loaded.
package skill

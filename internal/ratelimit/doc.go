// Package ratelimit enforces the per-user daily execution quota of each plan
// tier, either in process or shared across instances through Redis.
package ratelimit

// Package audit records every gate decision, execution outcome, confirmation
// and phase transition. Events are append-only and may be fanned out to the
// audit log, the SQL store and a RabbitMQ exchange.
package audit

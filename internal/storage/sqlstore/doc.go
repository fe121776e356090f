// Package sqlstore persists activations, audit events, pending confirmations
// and life stats in MySQL or SQLite. Schema changes are applied from the
// embedded migrations of the selected dialect when the store is opened.
package sqlstore

// Package llm contains adapters for invoking large language models. It
// abstracts provider-specific APIs behind Client, used for conversational
// replies, preference extraction, skill execution and semantic skill matching,
// and bounds provider failures with a retry policy.
package llm

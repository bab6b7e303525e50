// Package generate wraps streaming completion providers behind the Generator
// interface. The orchestrator supplies the full prompt context on every call
// and pulls fragments one at a time; providers hold no state between calls.
// The OpenAI implementation speaks the chat completion streaming protocol and
// works against any OpenAI-compatible endpoint via a configurable base URL.
package generate

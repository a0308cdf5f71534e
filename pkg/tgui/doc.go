// Package tgui holds the Telegram presentation toolkit: an HTML-safe message
// builder, inline keyboard and callback-data helpers, pagination, and a token
// store for callback payloads that exceed Telegram's 64-byte limit.
//
// Handlers compose a Message with Builder, attach keyboards with Inline, and
// let the adapter worry about parse modes and chunking. Everything escapes by
// default; RawLine and the H type are the explicit opt-outs.
package tgui

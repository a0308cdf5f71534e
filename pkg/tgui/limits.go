package tgui

// MaxCallbackDataLen is Telegram's byte limit for the complete callback_data
// string, prefix and payload included.
const MaxCallbackDataLen = 64

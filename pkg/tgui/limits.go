package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// It covers the full "namespace:action:payload" string.
const MaxCallbackDataLen = 64

// MaxMessageLen is Telegram's text limit for a single message, in UTF-16 units.
const MaxMessageLen = 4096

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (namespace:action:payload)
//   - A message builder that escapes for ParseMode="HTML" by default
package tgui

// Package tui implements the terminal task list using Bubble Tea.
//
// # State Machine
//
// The Model holds the view state (filter, search term, cursor and input
// mode) while the task collection itself lives in the store. Modes:
//   - ModeList: navigate, toggle, remove, cycle priority and filters
//   - ModeAdd / ModeEdit: text input for a task name
//   - ModeSearch: live search, every keystroke re-projects the list
//   - ModeConfirmClear: y/n prompt before the collection is emptied
//
// # Async Command Pattern
//
// Store mutations may block on a slow backend, so they run as tea.Cmd:
//
//	mutate(op, fn) → mutationDoneMsg → refresh + notice
//
// # Notices
//
// Errors and confirmations appear in a banner that clears itself after
// Options.NoticeDelay. Each notice carries a sequence number, so a newer
// notice supersedes both the text and the pending clear of the old one.
package tui

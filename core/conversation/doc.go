// Package conversation drives multi-step dialogs for chat bots.
//
// A Core owns a per-user session (the current stage and the last text the
// user sent), a set of Scripts entered through commands and advanced by free
// text, and a list of Impacts that react to button callbacks. The package
// knows nothing about a particular messaging platform: transports convert
// their updates into CommandEvent, MessageEvent or CallbackEvent values and
// hand them to the Core.
package conversation

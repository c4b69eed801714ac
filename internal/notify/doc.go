// Package notify routes fleet alerts to Telegram chats.
//
// The router subscribes to the Alerts hierarchy and the configuration
// reply suffixes. Alerts resolve to a chat through the registry (userID
// directly, or device -> owner -> user), pass a per-(chat, type, device)
// cooldown, and are formatted with a severity icon before delivery.
// Delivered alerts are recorded in a local SQLite history so users can
// review recent notifications with /history.
//
// Resolution events (door_closed_*) bypass the cooldown and do not
// update it: a closing door should always be announced if its timeout was.
package notify

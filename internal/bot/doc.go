// Package bot implements the Telegram interaction engine.
//
// The Engine is pure dispatch over three inputs: text messages, inline
// button callbacks and platform status updates. Each chat has a small
// state machine driving the registration, rename and configuration
// flows; /cancel resets it from any state and an unknown command aborts
// the state before executing.
//
// The Telegram transport lives behind the Chat interface so the engine
// is tested without the network. The concrete wrapper over
// go-telegram-bot-api is in telegram.go.
package bot

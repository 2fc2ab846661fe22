// Package notifier renders watcher changes into Discord embeds and delivers
// them.
//
// Delivery is synchronous: the watcher needs to know whether an item
// reached every channel before it records the item as seen. Sends share a
// token bucket so a burst of new items cannot trip Discord's rate limits.
//
// Ranked sources keep one message per channel and edit it in place; the
// message id is persisted as soon as the first post succeeds.
package notifier

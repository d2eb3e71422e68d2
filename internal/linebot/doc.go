// Package linebot is the LINE customer-service bot.
//
// [WebhookHandler] verifies the channel signature, converts the SDK events
// into [Event] values and queues them on a [Dispatcher]. The dispatcher's
// workers hand each event to a [Bot], which decides whether to answer,
// runs group commands (clocking in the attendance group, order, stock and
// leave schedule queries in the boss group, leave and advance requests and
// the knowledge base in the staff group), falls back to fixed answers and
// finally to the LLM with the chat's recent history.
//
// A group's [Role] comes from configuration. Groups without a role only
// get answers when a message contains the trigger word.
package linebot

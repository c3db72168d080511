// Package notify turns a comparison summary into a briefing card and posts it
// to chat webhooks.
//
// Supported webhook types:
//
//	feishu  interactive message card ({"msg_type":"interactive","card":...})
//	slack   incoming webhook text
//	teams   MessageCard coloured by status
//	http    generic JSON body {"report": <card>}
//
// Delivery is fire-and-forget: failures are logged and never retried.
package notify

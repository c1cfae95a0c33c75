// Package notify posts a run summary to chat webhooks.
//
// A Manager decides from its NotifyOn policy whether a run is worth a
// message, then hands the summary to every configured Notifier. Slack
// incoming webhooks and Microsoft Teams Adaptive Card webhooks are
// supported.
package notify

// Package alerts turns alerted weeks into notifications and delivers them to
// webhooks.
//
// Engine.Evaluate walks the alerted weeks of a report and, for every set flag
// whose (source, week, category) has not been claimed in the ledger before,
// creates a Notification and delivers it asynchronously to every configured
// webhook (slack, teams, http). Severity is critical for VRSA and warning for
// everything else.
//
// Digest posts a summary of all currently alerted weeks on a cron schedule.
package alerts

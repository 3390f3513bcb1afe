package api

import "context"

// Notification is the structured message handed to a Notifier. The engine
// never inspects transport details; the concrete transport (mail, chat,
// webhook) lives outside the core.
type Notification struct {
	Sender      string
	Recipients  []string
	Subject     string
	Body        string
	Attachments []string
}

// Notifier delivers pipeline notifications. Delivery failures are reported
// to the caller but are never fatal to the dataflow engine.
type Notifier interface {
	SendNotification(ctx context.Context, n Notification) error
}

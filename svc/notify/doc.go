// Package notify delivers billing notifications by email.
//
// The billing service calls a Notifier after each committed state change.
// QueueNotifier turns that call into a queue task, so a slow or failing mail
// provider never affects a webhook or request. The worker side runs
// Mailer.Handler, which renders the templ component for the event and sends
// it through an email.EmailSender. Failed sends are retried by the queue and
// end up in its dead letter queue once retries run out.
package notify

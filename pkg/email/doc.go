// Package email sends transactional mail rendered from templ components.
//
// EmailSender is implemented by the Postmark client for production and by
// DevSender, which writes each message to disk as HTML plus JSON metadata.
// NewSender picks one from Config: without Postmark tokens the dev sender is
// used.
//
//	sender, err := email.NewSender(cfg)
//	body, err := email.Render(ctx, component)
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "billing@acme.test",
//		Subject:  "Your invoice",
//		BodyHTML: body,
//		Tag:      "subscription_invoice",
//	})
//
// Errors wrap ErrFailedToSendEmail, ErrInvalidConfig or ErrInvalidParams and
// can be checked with errors.Is.
package email

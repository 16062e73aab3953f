// Package logger builds *slog.Logger instances for billingkit services.
//
// New creates a JSON or text handler from functional options and wraps it with
// LogHandlerDecorator, which pulls request-scoped attributes (request id,
// tenant id) out of context.Context on every record.
//
// Attribute helpers in attr.go keep key names consistent across packages:
//
//	log.InfoContext(ctx, "refund created",
//		logger.TenantID(tenantID),
//		logger.RefundID(res.RefundID),
//		logger.Amount(res.Amount),
//	)
package logger

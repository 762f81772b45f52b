package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication and authorization events on the
// ask and admin endpoints. Record methods are safe on a nil receiver.
type SecurityMetrics struct {
	authAttempts          metric.Int64Counter
	authFailures          metric.Int64Counter
	authSuccesses         metric.Int64Counter
	adminEndpointAccess   metric.Int64Counter
	unauthorizedAttempts  metric.Int64Counter
	tokenValidationErrors metric.Int64Counter
	claimRestrictions     metric.Int64Counter
}

// InitSecurityMetrics initializes security-specific metrics.
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter("salesql/security")

	m := &SecurityMetrics{}
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&m.authAttempts, "security.auth.attempts.total", "Total number of authentication attempts"},
		{&m.authFailures, "security.auth.failures.total", "Total number of authentication failures"},
		{&m.authSuccesses, "security.auth.successes.total", "Total number of successful authentications"},
		{&m.adminEndpointAccess, "security.admin.access.total", "Total number of admin endpoint access attempts"},
		{&m.unauthorizedAttempts, "security.unauthorized.attempts.total", "Total number of unauthorized access attempts"},
		{&m.tokenValidationErrors, "security.token.validation_errors.total", "Total number of token validation errors"},
		{&m.claimRestrictions, "security.claims.restrictions.total", "Questions narrowed by table or route claims"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// RecordAuthAttempt records an authentication attempt.
func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthFailure records a failed authentication attempt.
func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordAuthSuccess records a successful authentication.
func (m *SecurityMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	if m == nil {
		return
	}
	m.authSuccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("issuer", issuer),
	))
}

// RecordAdminEndpointAccess records a call to an admin endpoint.
func (m *SecurityMetrics) RecordAdminEndpointAccess(ctx context.Context, operation string, authenticated, success bool) {
	if m == nil {
		return
	}
	m.adminEndpointAccess.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("authenticated", authenticated),
		attribute.Bool("success", success),
	))
}

// RecordUnauthorizedAttempt records a rejected request.
func (m *SecurityMetrics) RecordUnauthorizedAttempt(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.unauthorizedAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordTokenValidationError records a token validation error by type.
func (m *SecurityMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.tokenValidationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errorType)))
}

// RecordClaimRestriction records a question whose tables or route were
// narrowed by token claims. kind is "tables" or "route".
func (m *SecurityMetrics) RecordClaimRestriction(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.claimRestrictions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

package payment

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/apperr"
)

const maxPayloadBytes = 65536

// Lifecycle receives verified payment outcomes.
type Lifecycle interface {
	OnPaymentSuccess(ctx context.Context, metadata map[string]string) error
	OnPaymentFailure(ctx context.Context, metadata map[string]string, reason string) error
}

// Handler serves the Stripe webhook endpoint.
type Handler struct {
	verifier  *Verifier
	lifecycle Lifecycle
	logger    zerolog.Logger
}

func NewHandler(verifier *Verifier, lifecycle Lifecycle, logger zerolog.Logger) *Handler {
	return &Handler{verifier: verifier, lifecycle: lifecycle, logger: logger}
}

// RegisterRoutes mounts the webhook outside the authenticated API group.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.Stripe)
}

func (h *Handler) Stripe(c echo.Context) error {
	sig := c.Request().Header.Get("Stripe-Signature")
	if sig == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing stripe-signature header")
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	evt, err := h.verifier.Parse(payload, sig)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthorized) {
			h.logger.Warn().Err(err).Msg("webhook signature verification failed")
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		h.logger.Warn().Err(err).Msg("webhook payload rejected")
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}

	ctx := c.Request().Context()
	log := h.logger.With().Str("event_id", evt.ID).Str("event_type", evt.Type).Logger()

	switch evt.Kind {
	case KindSucceeded:
		err = h.lifecycle.OnPaymentSuccess(ctx, evt.Metadata)
	case KindFailed:
		err = h.lifecycle.OnPaymentFailure(ctx, evt.Metadata, evt.FailureReason)
	default:
		log.Debug().Msg("webhook event ignored")
		return c.JSON(http.StatusOK, map[string]bool{"received": true})
	}

	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindValidation, apperr.KindConflict, apperr.KindForbidden:
			// Acknowledged; redelivery cannot change the outcome.
			log.Warn().Err(err).Msg("payment event not applied")
		default:
			log.Error().Err(err).Msg("payment event failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "webhook processing failed").SetInternal(err)
		}
	} else {
		log.Info().Str("payment_intent", evt.PaymentIntentID).Msg("payment event applied")
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

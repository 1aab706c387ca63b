package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/genpire/genpire/internal/config"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	obsmetrics "github.com/genpire/genpire/internal/observability/metrics"
)

const eventOrderPaid = "order.paid"

var (
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrMalformedPayload = errors.New("malformed_webhook_payload")
)

// Event is the provider-agnostic webhook envelope. Providers that wrap the
// order differently are normalized at the handler edge.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Order struct {
			ID                 string `json:"id"`
			CustomerExternalID string `json:"customer_external_id"`
			ProductSKU         string `json:"product_sku"`
		} `json:"order"`
	} `json:"data"`
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Costs   *config.CostsHolder
	Credits creditsdomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Service turns verified payment webhooks into credit grants.
type Service struct {
	log     *zap.Logger
	secret  []byte
	costs   *config.CostsHolder
	credits creditsdomain.Service
	metrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		log:     p.Log.Named("payments.service"),
		secret:  []byte(p.Config.Payments.WebhookSecret),
		costs:   p.Costs,
		credits: p.Credits,
		metrics: p.Metrics,
	}
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body against the
// shared webhook secret.
func (s *Service) VerifySignature(payload []byte, signature string) error {
	if len(s.secret) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleEvent processes one verified webhook delivery. Redeliveries are safe:
// the grant is idempotent by event id. Unknown event types and SKUs are
// acknowledged so the provider stops retrying them.
func (s *Service) HandleEvent(ctx context.Context, provider string, payload []byte) error {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if event.ID == "" || event.Type == "" {
		return ErrMalformedPayload
	}

	s.metrics.RecordPaymentEvent(ctx, provider, event.Type)

	if event.Type != eventOrderPaid {
		s.log.Debug("ignoring webhook event",
			zap.String("provider", provider),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(event.Data.Order.CustomerExternalID))
	if err != nil || userID == 0 {
		return fmt.Errorf("%w: bad customer id", ErrMalformedPayload)
	}

	sku := strings.TrimSpace(event.Data.Order.ProductSKU)
	credits, ok := s.lookupPack(sku)
	if !ok {
		s.log.Warn("order for unknown credit pack",
			zap.String("provider", provider),
			zap.String("sku", sku),
			zap.String("event_id", event.ID),
		)
		return nil
	}

	if err := s.credits.Grant(ctx, creditsdomain.GrantRequest{
		UserID:          userID,
		Amount:          credits,
		Source:          provider + ":" + sku,
		ExternalEventID: event.ID,
	}); err != nil {
		return err
	}

	s.log.Info("credit pack granted",
		zap.String("provider", provider),
		zap.String("user_id", userID.String()),
		zap.String("sku", sku),
		zap.Int64("credits", credits),
	)
	return nil
}

func (s *Service) lookupPack(sku string) (int64, bool) {
	for _, pack := range s.costs.Get().Packs {
		if pack.SKU == sku {
			return pack.Credits, true
		}
	}
	return 0, false
}

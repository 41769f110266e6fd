package dining

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentEncoder builds the bank payment payload for a merchant account and amount.
type PaymentEncoder interface {
	EncodePayment(merchantID string, amount decimal.Decimal) (string, error)
}

// QRRenderer turns a payload into a scannable image reference (URL or data URI).
type QRRenderer interface {
	RenderQR(ctx context.Context, name string, payload string) (string, error)
}

// Publisher receives lifecycle events after the transaction that produced them commits.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type Options struct {
	ServiceChargeRate decimal.Decimal
	ClientBaseURL     string
	PromptPayID       string
	Encoder           PaymentEncoder
	Renderer          QRRenderer
	Publisher         Publisher
	Logger            *zap.Logger
	Now               func() time.Time
	NewToken          func() string
}

type Service struct {
	store         Store
	rate          decimal.Decimal
	clientBaseURL string
	promptPayID   string
	encoder       PaymentEncoder
	renderer      QRRenderer
	publisher     Publisher
	logger        *zap.Logger
	now           func() time.Time
	newToken      func() string
}

func NewService(store Store, opts Options) *Service {
	svc := &Service{
		store:         store,
		rate:          opts.ServiceChargeRate,
		clientBaseURL: strings.TrimRight(strings.TrimSpace(opts.ClientBaseURL), "/"),
		promptPayID:   opts.PromptPayID,
		encoder:       opts.Encoder,
		renderer:      opts.Renderer,
		publisher:     opts.Publisher,
		logger:        opts.Logger,
		now:           opts.Now,
		newToken:      opts.NewToken,
	}
	if svc.rate.IsZero() {
		svc.rate = DefaultServiceChargeRate
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newToken == nil {
		svc.newToken = newSessionToken
	}
	return svc
}

// ServiceChargeRate is the rate applied to bill subtotals.
func (s *Service) ServiceChargeRate() decimal.Decimal {
	return s.rate
}

func (s *Service) publish(ctx context.Context, events ...Event) {
	if s.publisher == nil {
		return
	}
	for _, evt := range events {
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn("event publish failed", zap.String("type", evt.Type), zap.Error(err))
		}
	}
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.store.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return err
	}
	s.logger.Error("dining transaction failed", zap.Error(err))
	return internal("storage failure", err)
}

// renderQR runs after the write commits so no row lock is held across an upload. A failed render
// leaves the image empty; the payload returned beside it is enough to draw the code.
func (s *Service) renderQR(ctx context.Context, name, payload string) string {
	if s.renderer == nil {
		return ""
	}
	image, err := s.renderer.RenderQR(ctx, name, payload)
	if err != nil {
		s.logger.Warn("qr render failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	return image
}

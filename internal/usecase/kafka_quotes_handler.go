package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
	pkgkafka "RateCast/pkg/kafka"
	"RateCast/pkg/util"
)

// KafkaQuotesHandler stores crawler quotes. A message is one quote object or an array of them.
type KafkaQuotesHandler struct {
	topic    string
	store    domrepo.QuoteStore
	validate *validator.Validate
}

func NewKafkaQuotesHandler(topic string, store domrepo.QuoteStore) *KafkaQuotesHandler {
	return &KafkaQuotesHandler{topic: topic, store: store, validate: validator.New()}
}

func (h *KafkaQuotesHandler) Topic() string { return h.topic }

func (h *KafkaQuotesHandler) Handle(ctx context.Context, b []byte) error {
	quotes, err := decodeQuotes(b)
	if err != nil {
		return err
	}
	obs := make([]models.PriceObservation, 0, len(quotes))
	for _, q := range quotes {
		o, err := h.observation(q)
		if err != nil {
			return err
		}
		obs = append(obs, o)
	}
	if len(obs) == 0 {
		return nil
	}
	if err := h.store.StoreBatch(ctx, obs); err != nil {
		return fmt.Errorf("store quotes: %w", err)
	}
	return nil
}

func decodeQuotes(b []byte) ([]models.RawQuote, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var qs []models.RawQuote
		if err := json.Unmarshal(b, &qs); err != nil {
			return nil, fmt.Errorf("decode quotes: %w", err)
		}
		return qs, nil
	}
	var q models.RawQuote
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	return []models.RawQuote{q}, nil
}

func (h *KafkaQuotesHandler) observation(q models.RawQuote) (models.PriceObservation, error) {
	if err := h.validate.Struct(q); err != nil {
		return models.PriceObservation{}, fmt.Errorf("invalid quote: %w", err)
	}
	day, ok := util.ParseDay(q.Date)
	if !ok {
		return models.PriceObservation{}, fmt.Errorf("invalid quote date %q", q.Date)
	}
	if !q.Sell.IsPositive() || q.Buy.IsNegative() {
		return models.PriceObservation{}, fmt.Errorf("invalid quote prices sell=%s buy=%s", q.Sell, q.Buy)
	}
	return models.PriceObservation{
		EntityID:  util.NormalizeEntity(q.Bank),
		Date:      day,
		SellPrice: q.Sell,
		Spread:    q.Sell.Sub(q.Buy),
	}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaQuotesHandler)(nil)

package stanza

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/pkg/models"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/telemetry"
)

var ErrInvalidInput = errors.New("invalid stanza")

// Authorizer answers whether a user id may receive messages.
type Authorizer interface {
	HasUser(ctx context.Context, id string) (bool, error)
}

type Sink interface {
	Insert(ctx context.Context, m *models.Message) error
}

// Handler turns inbound chat stanzas into routed messages.
type Handler struct {
	auth    Authorizer
	sink    Sink
	metrics *telemetry.Metrics
}

func NewHandler(auth Authorizer, sink Sink, metrics *telemetry.Metrics) *Handler {
	return &Handler{auth: auth, sink: sink, metrics: metrics}
}

// Handle routes st from sender. It returns the inserted message, or nil
// with a nil error when the recipient is not a known user and the stanza
// was dropped.
func (h *Handler) Handle(ctx context.Context, sender string, st Stanza) (*models.Message, error) {
	to := st.Attr("to")
	if to == "" {
		h.metrics.StanzaResult(telemetry.StanzaInvalid)
		return nil, fmt.Errorf("%w: missing to attribute", ErrInvalidInput)
	}
	recipient, ok := models.BareUser(to)
	if !ok {
		h.metrics.StanzaResult(telemetry.StanzaInvalid)
		return nil, fmt.Errorf("%w: recipient %q has no domain", ErrInvalidInput, to)
	}

	known, err := h.auth.HasUser(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("authorize %s: %w", recipient, err)
	}
	if !known {
		logger.Warn("message_recipient_not_allowed", "sender", sender, "recipient", recipient)
		h.metrics.StanzaResult(telemetry.StanzaDropped)
		return nil, nil
	}

	payload := make([]models.PayloadEntry, 0, len(st.Value))
	for _, el := range st.Value {
		name, ns := SplitKey(el.Key)
		payload = append(payload, models.PayloadEntry{Name: name, Namespace: ns, Value: el.Value})
	}

	m := &models.Message{
		Kind:     models.KindMessage,
		From:     sender,
		To:       recipient,
		Type:     st.Attr("type"),
		StanzaID: st.Attr("id"),
		Payload:  payload,
	}
	if err := h.sink.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("deliver message to %s: %w", recipient, err)
	}
	h.metrics.StanzaResult(telemetry.StanzaDelivered)
	h.metrics.MessageInserted(models.KindMessage)
	return m, nil
}

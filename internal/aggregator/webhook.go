package aggregator

import (
	"context"
	"strings"
	"time"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
)

// WebhookPayload is the subset of the aggregator's webhook body this
// system acts on.
type WebhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	Error       *struct {
		ErrorCode string `json:"error_code"`
	} `json:"error,omitempty"`
}

// IsTransactionsUpdate reports whether the webhook is a
// TRANSACTIONS/*_UPDATE event, the only kind that triggers an async sync
// (§4.4 "webhook handling").
func (p WebhookPayload) IsTransactionsUpdate() bool {
	return strings.EqualFold(p.WebhookType, "TRANSACTIONS") && strings.HasSuffix(strings.ToUpper(p.WebhookCode), "_UPDATE")
}

// IsItemError reports whether the webhook marks the item ERROR or
// PENDING_EXPIRATION (§7 "upstream semantic").
func (p WebhookPayload) IsItemError() bool {
	return strings.EqualFold(p.WebhookType, "ITEM") &&
		(strings.EqualFold(p.WebhookCode, "ERROR") || strings.EqualFold(p.WebhookCode, "PENDING_EXPIRATION"))
}

// WebhookHandler processes aggregator webhooks. HandleAsync is invoked from
// an HTTP handler that has already replied 200; it never returns an error
// to a caller by design (§4.4, §7).
type WebhookHandler struct {
	links   *repositories.InstitutionLinkRepository
	service *Service
}

// NewWebhookHandler builds a WebhookHandler.
func NewWebhookHandler(links *repositories.InstitutionLinkRepository, service *Service) *WebhookHandler {
	return &WebhookHandler{links: links, service: service}
}

// HandleAsync resolves the link behind payload.ItemID and either triggers a
// sync or records an item-level error status. Always logged and swallowed.
func (h *WebhookHandler) HandleAsync(ctx context.Context, payload WebhookPayload) {
	link, err := h.links.FindByInstitutionID(ctx, payload.ItemID)
	if err != nil {
		h.service.log.Warn().Err(err).Str("item_id", payload.ItemID).Msg("webhook for unknown item")
		return
	}

	switch {
	case payload.IsTransactionsUpdate():
		if err := h.service.SyncLink(ctx, link); err != nil {
			h.service.log.Error().Err(err).Str("link_id", link.ID).Msg("webhook-triggered sync failed")
		}
	case payload.IsItemError():
		status := domain.LinkStatusError
		if strings.EqualFold(payload.WebhookCode, "PENDING_EXPIRATION") {
			status = domain.LinkStatusLoginRequired
		}
		code := payload.WebhookCode
		if payload.Error != nil && payload.Error.ErrorCode != "" {
			code = payload.Error.ErrorCode
		}
		if err := h.links.UpdateStatus(ctx, link.ID, status, code, "aggregator webhook reported item status", time.Now().UTC()); err != nil {
			h.service.log.Error().Err(err).Str("link_id", link.ID).Msg("failed to record webhook item status")
		}
	}
}

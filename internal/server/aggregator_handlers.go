package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/aggregator"
	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/crypto"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
)

// AggregatorHandler implements /api/plaid (§4.4, §6): the hosted
// multi-institution bank-sync linking and sync surface.
type AggregatorHandler struct {
	client   *aggregator.Client
	service  *aggregator.Service
	webhooks *aggregator.WebhookHandler
	vault    *crypto.Vault
	links    *repositories.InstitutionLinkRepository
	accounts *repositories.SourceAccountRepository
}

// NewAggregatorHandler builds a new AggregatorHandler.
func NewAggregatorHandler(
	client *aggregator.Client,
	service *aggregator.Service,
	webhooks *aggregator.WebhookHandler,
	vault *crypto.Vault,
	links *repositories.InstitutionLinkRepository,
	accounts *repositories.SourceAccountRepository,
) *AggregatorHandler {
	return &AggregatorHandler{client: client, service: service, webhooks: webhooks, vault: vault, links: links, accounts: accounts}
}

// RegisterRoutes wires the authenticated /api/plaid routes.
func (h *AggregatorHandler) RegisterRoutes(r chi.Router) {
	r.Post("/link-token", h.handleLinkToken)
	r.Post("/exchange", h.handleExchange)
	r.Get("/items", h.handleItems)
	r.Post("/sync/{itemId}", h.handleSyncOne)
	r.Post("/sync-all", h.handleSyncAll)
	r.Delete("/items/{itemId}", h.handleDeleteItem)
	r.Get("/transactions", h.handleTransactions)
	r.Patch("/accounts/{id}", h.handlePatchAccount)
}

// RegisterWebhookRoute wires the unauthenticated /api/plaid/webhook route
// onto a separate, public router group.
func (h *AggregatorHandler) RegisterWebhookRoute(r chi.Router) {
	r.Post("/webhook", h.handleWebhook)
}

func (h *AggregatorHandler) handleLinkToken(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	resp, err := h.client.CreateLinkToken(r.Context(), userID)
	if err != nil {
		writeError(w, apperr.Internal("failed to create link token", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type exchangeRequest struct {
	PublicToken     string `json:"public_token"`
	InstitutionID   string `json:"institution_id"`
	InstitutionName string `json:"institution_name"`
}

func (h *AggregatorHandler) handleExchange(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil || req.PublicToken == "" {
		writeError(w, apperr.Validation("public_token is required"))
		return
	}

	resp, err := h.client.ExchangePublicToken(r.Context(), req.PublicToken)
	if err != nil {
		writeError(w, apperr.Internal("failed to exchange public token", err))
		return
	}

	encrypted, err := h.vault.Encrypt(resp.AccessToken)
	if err != nil {
		writeError(w, apperr.Internal("failed to encrypt credential", err))
		return
	}

	link, err := h.links.Create(r.Context(), &domain.InstitutionLink{
		UserID:              userID,
		SourceKind:          domain.SourceAggregator,
		InstitutionID:       resp.ItemID,
		InstitutionName:     req.InstitutionName,
		CredentialEncrypted: encrypted,
		Status:              domain.LinkStatusGood,
	})
	if err != nil {
		writeError(w, apperr.Internal("failed to persist institution link", err))
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *AggregatorHandler) handleItems(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	links, err := h.links.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, apperr.Internal("failed to list linked items", err))
		return
	}
	out := make([]*domain.InstitutionLink, 0, len(links))
	for _, l := range links {
		if l.SourceKind == domain.SourceAggregator {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AggregatorHandler) handleSyncOne(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	itemID := chi.URLParam(r, "itemId")
	link, err := h.links.GetByID(r.Context(), userID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.SyncLink(r.Context(), link); err != nil {
		writeError(w, apperr.Internal("sync failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (h *AggregatorHandler) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	links, err := h.links.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, apperr.Internal("failed to list linked items", err))
		return
	}
	synced := 0
	for _, l := range links {
		if l.SourceKind != domain.SourceAggregator || l.Status == domain.LinkStatusLoginRequired {
			continue
		}
		if err := h.service.SyncLink(r.Context(), l); err == nil {
			synced++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"synced": synced})
}

func (h *AggregatorHandler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	itemID := chi.URLParam(r, "itemId")
	if err := h.links.Delete(r.Context(), userID, itemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *AggregatorHandler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, apperr.Internal("failed to list accounts", err))
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

type patchAccountRequest struct {
	Hidden bool `json:"hidden"`
}

func (h *AggregatorHandler) handlePatchAccount(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")
	var req patchAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if err := h.accounts.SetHidden(r.Context(), userID, id, req.Hidden); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleWebhook replies 200 immediately to any payload that decodes (400
// otherwise) and processes it in the background, matching the aggregator's at-least-once delivery
// contract (§4.4, §7). It runs on a detached context since the request's
// own context is canceled the moment this handler returns.
func (h *AggregatorHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload aggregator.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	w.WriteHeader(http.StatusOK)
	go h.webhooks.HandleAsync(context.Background(), payload)
}

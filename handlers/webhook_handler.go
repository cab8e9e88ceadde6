package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"raffle-system/config"
	"raffle-system/models"
	"raffle-system/security"
	"raffle-system/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// WebhookHandler terminates the chat provider's webhook: the subscription
// handshake on GET and message delivery on POST.
type WebhookHandler struct {
	app      *pocketbase.PocketBase
	cfg      *config.Config
	dispatch *services.DispatchService
	limiter  *security.RateLimiter
}

func NewWebhookHandler(app *pocketbase.PocketBase, cfg *config.Config, dispatch *services.DispatchService, limiter *security.RateLimiter) *WebhookHandler {
	return &WebhookHandler{
		app:      app,
		cfg:      cfg,
		dispatch: dispatch,
		limiter:  limiter,
	}
}

// Verify - webhook subscription handshake
func (h *WebhookHandler) Verify(e *core.RequestEvent) error {
	query := e.Request.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && h.cfg.WebhookVerifyToken != "" && token == h.cfg.WebhookVerifyToken {
		return e.String(http.StatusOK, challenge)
	}
	return apis.NewForbiddenError("Verification failed", nil)
}

// Receive - inbound message delivery
func (h *WebhookHandler) Receive(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", err)
	}

	signature := e.Request.Header.Get("X-Hub-Signature-256")
	if !security.VerifyWebhookSignature(body, h.cfg.WebhookAppSecret, signature) {
		return apis.NewUnauthorizedError("Invalid signature", nil)
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apis.NewBadRequestError("Invalid payload", err)
	}

	ctx := e.Request.Context()
	results := []map[string]any{}
	for _, msg := range envelope.inboundMessages() {
		if h.limiter != nil && !h.limiter.Allow(ctx, "sender:"+msg.From) {
			results = append(results, map[string]any{
				"message_id": msg.ProviderMessageID,
				"reply":      &models.Prompt{Text: "You are sending messages too quickly. Please wait a moment."},
			})
			continue
		}

		outcome, err := h.dispatch.Dispatch(ctx, msg)
		if err != nil {
			slog.Error("dispatch failed", "message_id", msg.ProviderMessageID, "error", err)
			results = append(results, map[string]any{
				"message_id": msg.ProviderMessageID,
				"error":      true,
				"reply":      &models.Prompt{Text: "Something went wrong on our side. Please send that again."},
			})
			continue
		}

		results = append(results, map[string]any{
			"message_id": msg.ProviderMessageID,
			"state":      outcome.State,
			"duplicate":  outcome.Duplicate,
			"reply":      outcome.Reply,
		})
	}

	return e.JSON(http.StatusOK, map[string]any{"results": results})
}

// webhookEnvelope mirrors the provider's delivery format: batched entries,
// each carrying message change events.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []providerMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type providerMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image,omitempty"`
	Document *struct {
		ID string `json:"id"`
	} `json:"document,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
}

// inboundMessages flattens the envelope into dispatchable messages.
func (w *webhookEnvelope) inboundMessages() []*models.InboundMessage {
	var out []*models.InboundMessage
	for _, entry := range w.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, pm := range change.Value.Messages {
				msg := pm.toInbound()
				if msg == nil {
					continue
				}
				msg.DisplayName = names[pm.From]
				out = append(out, msg)
			}
		}
	}
	return out
}

func (pm *providerMessage) toInbound() *models.InboundMessage {
	if pm.ID == "" || pm.From == "" {
		return nil
	}

	msg := &models.InboundMessage{
		ProviderMessageID: pm.ID,
		From:              pm.From,
		Kind:              models.KindOther,
	}
	if raw, err := json.Marshal(pm); err == nil {
		msg.Raw = raw
	}

	switch {
	case pm.Type == "text" && pm.Text != nil:
		msg.Kind = models.KindText
		msg.Text = pm.Text.Body
	case pm.Type == "interactive" && pm.Interactive != nil && pm.Interactive.ButtonReply != nil:
		msg.Kind = models.KindNumberSelection
		msg.Text = pm.Interactive.ButtonReply.ID
	case pm.Type == "interactive" && pm.Interactive != nil && pm.Interactive.ListReply != nil:
		msg.Kind = models.KindNumberSelection
		msg.Text = pm.Interactive.ListReply.ID
	case pm.Type == "button" && pm.Button != nil:
		msg.Kind = models.KindText
		msg.Text = pm.Button.Payload
	case pm.Type == "image" && pm.Image != nil:
		msg.Kind = models.KindImage
		msg.MediaID = pm.Image.ID
		msg.Text = pm.Image.Caption
	case pm.Type == "document" && pm.Document != nil:
		msg.Kind = models.KindImage
		msg.MediaID = pm.Document.ID
	}
	return msg
}

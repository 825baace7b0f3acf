package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/fund-ledger/internal/ledger"
	"github.com/sheikh-saqib/fund-ledger/internal/rates"
)

// RateHandlers exposes the shared conversion cache.
type RateHandlers struct {
	logger   *slog.Logger
	cache    *rates.Cache
	upgrader websocket.Upgrader
}

func NewRateHandlers(logger *slog.Logger, cache *rates.Cache, allowedOrigins []string) *RateHandlers {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimSpace(o)] = struct{}{}
	}
	return &RateHandlers{
		logger: logger,
		cache:  cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, wildcard := origins["*"]
				_, ok := origins[origin]
				return wildcard || ok
			},
		},
	}
}

func pairFrom(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	base, err := ledger.NormalizeCurrency(r.URL.Query().Get("base"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base: "+err.Error())
		return "", "", false
	}
	target, err := ledger.NormalizeCurrency(r.URL.Query().Get("target"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target: "+err.Error())
		return "", "", false
	}
	return base, target, true
}

func (h *RateHandlers) rate(w http.ResponseWriter, r *http.Request) {
	base, target, ok := pairFrom(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.cache.Lookup(r.Context(), base, target))
}

type convertResponse struct {
	Amount      decimal.Decimal `json:"amount"`
	Base        string          `json:"base"`
	Target      string          `json:"target"`
	Rate        float64         `json:"rate"`
	Converted   decimal.Decimal `json:"converted"`
	Display     string          `json:"display"`
	Approximate bool            `json:"approximate,omitempty"`
}

func (h *RateHandlers) convert(w http.ResponseWriter, r *http.Request) {
	base, target, ok := pairFrom(w, r)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	entry := h.cache.Lookup(r.Context(), base, target)
	converted := amount.Mul(decimal.NewFromFloat(entry.Rate))
	respondJSON(w, http.StatusOK, convertResponse{
		Amount:      amount,
		Base:        base,
		Target:      target,
		Rate:        entry.Rate,
		Converted:   converted,
		Display:     rates.Format(converted, target),
		Approximate: entry.Approximate,
	})
}

// stream pushes the pair's rate on connect and after every refresh while
// the client stays connected. Server shutdown cancels the request context
// and the client receives a going-away close frame.
func (h *RateHandlers) stream(w http.ResponseWriter, r *http.Request) {
	base, target, ok := pairFrom(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("rate stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends; a read error means it went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for entry := range h.cache.Watch(ctx, base, target) {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(entry); err != nil {
			h.logger.Debug("rate stream closed", "base", base, "target", target, "error", err)
			return
		}
	}

	if r.Context().Err() != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/fund-ledger/internal/aggregate"
	interfaces "github.com/sheikh-saqib/fund-ledger/internal/interfaces"
	"github.com/sheikh-saqib/fund-ledger/internal/ledger"
	"github.com/sheikh-saqib/fund-ledger/internal/models"
	"github.com/sheikh-saqib/fund-ledger/internal/rates"
)

// FundHandlers exposes the owner-scoped ledger API. The owner id always
// comes from the verified token.
type FundHandlers struct {
	logger *slog.Logger
	ledger *ledger.Ledger
	rates  *rates.Cache
}

// NewFundHandlers constructs a FundHandlers instance. rates may be nil, in
// which case summaries are never converted.
func NewFundHandlers(logger *slog.Logger, l *ledger.Ledger, cache *rates.Cache) *FundHandlers {
	return &FundHandlers{logger: logger, ledger: l, rates: cache}
}

type registerOwnerRequest struct {
	Name string `json:"name"`
}

type profileRequest struct {
	FunderUsername string `json:"funderUsername"`
	Continent      string `json:"continent"`
}

type fundRequest struct {
	Destination string          `json:"destination"`
	FunderName  string          `json:"funderName"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

type fundResponse struct {
	Fund models.Transaction `json:"fund"`
	// Reconciling is set when only the embedded copy was written; the
	// global copy is healed in the background.
	Reconciling bool `json:"reconciling,omitempty"`
}

type destinationRequest struct {
	Destination string `json:"destination"`
}

func (h *FundHandlers) registerOwner(w http.ResponseWriter, r *http.Request) {
	var req registerOwnerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, err := h.ledger.RegisterOwner(r.Context(), ownerFrom(r.Context()), req.Name)
	if err != nil {
		h.writeLedgerError(w, "register owner", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"owner": owner})
}

func (h *FundHandlers) me(w http.ResponseWriter, r *http.Request) {
	owner, err := h.ledger.Owner(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		h.writeLedgerError(w, "get owner", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner": owner})
}

func (h *FundHandlers) setupProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, err := h.ledger.SetupProfile(r.Context(), ownerFrom(r.Context()), req.FunderUsername, req.Continent)
	if err != nil {
		h.writeLedgerError(w, "setup profile", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner": owner})
}

func (h *FundHandlers) deposit(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tx, err := h.ledger.Deposit(r.Context(), ownerFrom(r.Context()), req.Destination, req.FunderName, req.Amount, req.Currency)
	h.writeFund(w, "deposit", tx, err)
}

func (h *FundHandlers) withdraw(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid amount: must be a positive number")
		return
	}
	tx, err := h.ledger.Withdraw(r.Context(), ownerFrom(r.Context()), req.Destination, req.Amount, req.Currency, req.FunderName)
	h.writeFund(w, "withdraw", tx, err)
}

func (h *FundHandlers) writeFund(w http.ResponseWriter, op string, tx models.Transaction, err error) {
	if err != nil && !ledger.IsPartialWrite(err) {
		h.writeLedgerError(w, op, err)
		return
	}
	respondJSON(w, http.StatusCreated, fundResponse{Fund: tx, Reconciling: err != nil})
}

func (h *FundHandlers) list(w http.ResponseWriter, r *http.Request) {
	funds, err := h.ledger.ListByOwner(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		h.writeLedgerError(w, "list funds", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"funds": funds})
}

type destinationView struct {
	aggregate.Destination
	Converted        *decimal.Decimal `json:"converted,omitempty"`
	ConvertedDisplay string           `json:"convertedDisplay,omitempty"`
}

type summaryResponse struct {
	Destinations []destinationView `json:"destinations"`
	ByCurrency   aggregate.Totals  `json:"byCurrency"`
	Count        int               `json:"count"`
	Sort         aggregate.SortKey `json:"sort"`
	Currency     string            `json:"currency,omitempty"`
	Total        *decimal.Decimal  `json:"total,omitempty"`
	TotalDisplay string            `json:"totalDisplay,omitempty"`
	// Approximate is set when some bucket was converted at the fallback rate.
	Approximate bool `json:"approximate,omitempty"`
}

// summary aggregates the owner's funds. With ?currency=XXX every destination
// and the grand total are converted, and sort=amount compares converted
// totals instead of the loose cross-currency sum.
func (h *FundHandlers) summary(w http.ResponseWriter, r *http.Request) {
	key, ok := aggregate.ParseSortKey(r.URL.Query().Get("sort"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid sort: must be amount or recency")
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("currency"))
	if target != "" {
		code, err := ledger.NormalizeCurrency(target)
		if err != nil {
			h.writeLedgerError(w, "summary", err)
			return
		}
		target = code
	}

	funds, err := h.ledger.ListByOwner(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		h.writeLedgerError(w, "summary", err)
		return
	}
	sum := aggregate.Summarize(funds, key)
	resp := summaryResponse{
		ByCurrency: sum.ByCurrency,
		Count:      sum.Count,
		Sort:       key,
	}

	if target == "" || h.rates == nil {
		resp.Destinations = make([]destinationView, 0, len(sum.Destinations))
		for _, d := range sum.Destinations {
			resp.Destinations = append(resp.Destinations, destinationView{Destination: d})
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	resp.Currency = target
	converted := make(map[string]decimal.Decimal, len(sum.Destinations))
	for _, d := range sum.Destinations {
		total, approx := h.rates.ConvertTotals(r.Context(), d.Totals, target)
		converted[d.Name] = total
		resp.Approximate = resp.Approximate || approx
	}
	if key == aggregate.SortByAmount {
		aggregate.SortDestinationsBy(sum.Destinations, func(d aggregate.Destination) decimal.Decimal { return converted[d.Name] })
	}
	grand, approx := h.rates.ConvertTotals(r.Context(), sum.ByCurrency, target)
	resp.Total = &grand
	resp.TotalDisplay = rates.Format(grand, target)
	resp.Approximate = resp.Approximate || approx

	resp.Destinations = make([]destinationView, 0, len(sum.Destinations))
	for _, d := range sum.Destinations {
		total := converted[d.Name]
		resp.Destinations = append(resp.Destinations, destinationView{
			Destination:      d,
			Converted:        &total,
			ConvertedDisplay: rates.Format(total, target),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *FundHandlers) wipe(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.ledger.WipeDestination(r.Context(), ownerFrom(r.Context()), req.Destination)
	if err != nil && !ledger.IsPartialWrite(err) {
		h.writeLedgerError(w, "wipe destination", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"destination": res.Destination,
		"embedded":    res.Embedded,
		"global":      res.Global,
		"reconciling": err != nil,
	})
}

func (h *FundHandlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	removed, err := h.ledger.DeleteOwnerLedger(r.Context(), ownerFrom(r.Context()))
	if err != nil && !ledger.IsPartialWrite(err) {
		h.writeLedgerError(w, "delete account", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"removed":     removed,
		"reconciling": err != nil,
	})
}

func (h *FundHandlers) writeLedgerError(w http.ResponseWriter, op string, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, interfaces.ErrOwnerExists):
		writeError(w, http.StatusConflict, "owner already registered")
	default:
		h.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

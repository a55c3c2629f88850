package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/subshare/subshare/internal/repos/accounts"
	"github.com/subshare/subshare/internal/repos/bookings"
	"github.com/subshare/subshare/internal/repos/listings"
	"github.com/subshare/subshare/internal/services/booking"
	"github.com/subshare/subshare/internal/services/wallet"
)

// HandlerProvider wraps the booking engine and wallet service and exposes
// HTTP handlers.
type HandlerProvider struct {
	engine *booking.Engine
	wallet *wallet.Service
}

// NewHandler returns a new Handler provider.
func NewHandler(engine *booking.Engine, walletSvc *wallet.Service) *HandlerProvider {
	return &HandlerProvider{engine: engine, wallet: walletSvc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)

		http.Error(w, `{"error":"internal json encode failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// callerID reads the verified caller identity from the X-Account-ID header.
// The upstream gateway authenticates the request and sets the header; the
// engine trusts it without re-verifying credentials.
func callerID(r *http.Request) (uint64, error) {
	raw := r.Header.Get("X-Account-ID")
	if raw == "" {
		return 0, fmt.Errorf("missing X-Account-ID")
	}

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid X-Account-ID: %w", err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid X-Account-ID: must be positive")
	}

	return id, nil
}

// parseAccountIDFromPath reads `{accountId}` from chi routes like:
//
//	GET  /accounts/{accountId}/balance
//	POST /accounts/{accountId}/topup
func parseAccountIDFromPath(r *http.Request) (uint64, error) {
	idStr := chi.URLParam(r, "accountId")
	if idStr == "" {
		return 0, fmt.Errorf("missing accountId")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid accountId: %w", err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid accountId: must be positive")
	}

	return id, nil
}

func parseBookingIDFromPath(r *http.Request) (uuid.UUID, error) {
	idStr := chi.URLParam(r, "bookingId")
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("missing bookingId")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid bookingId: %w", err)
	}

	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}

		return fmt.Errorf("invalid JSON")
	}

	return nil
}

type bookingJSON struct {
	ID                 uuid.UUID  `json:"id"`
	ClientID           uint64     `json:"clientId"`
	ProviderID         uint64     `json:"providerId"`
	ListingID          uint64     `json:"listingId"`
	PaymentID          *int64     `json:"paymentId,omitempty"`
	PriceCharged       int64      `json:"priceCharged"`
	RentalStart        time.Time  `json:"rentalStart"`
	RentalEnd          time.Time  `json:"rentalEnd"`
	Status             string     `json:"status"`
	SharedCredentials  *string    `json:"sharedCredentials,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason *string    `json:"cancellationReason,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func toBookingJSON(b *bookings.Booking) bookingJSON {
	return bookingJSON{
		ID:                 b.ID,
		ClientID:           b.ClientID,
		ProviderID:         b.ProviderID,
		ListingID:          b.ListingID,
		PaymentID:          b.PaymentID,
		PriceCharged:       b.PriceCharged,
		RentalStart:        b.RentalStart,
		RentalEnd:          b.RentalEnd,
		Status:             string(b.Status),
		SharedCredentials:  b.SharedCredentials,
		CancelledAt:        b.CancelledAt,
		CancellationReason: b.CancellationReason,
		CompletedAt:        b.CompletedAt,
		CreatedAt:          b.CreatedAt,
	}
}

// writeEngineError maps engine/repo sentinels onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bookings.ErrBookingNotFound),
		errors.Is(err, listings.ErrListingNotFound),
		errors.Is(err, accounts.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, accounts.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient funds")
	case errors.Is(err, listings.ErrNoFreeSlots):
		writeError(w, http.StatusConflict, "no free slots")
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "booking already cancelled")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid booking state")
	case errors.Is(err, booking.ErrNotProvider),
		errors.Is(err, booking.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, booking.ErrOwnListing),
		errors.Is(err, booking.ErrListingInactive),
		errors.Is(err, booking.ErrInvalidDuration),
		errors.Is(err, wallet.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Handlers ---

type createBookingRequest struct {
	ListingID    uint64 `json:"listingId"`
	DurationDays int    `json:"durationDays"`
}

// CreateBookingHandler handles POST /bookings
func (h *HandlerProvider) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	clientID, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createBookingRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.engine.CreateBooking(r.Context(), clientID, req.ListingID, req.DurationDays)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingJSON(b))
}

// GetBookingHandler handles GET /bookings/{bookingId}
func (h *HandlerProvider) GetBookingHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookingID, err := parseBookingIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.engine.GetBooking(r.Context(), bookingID, caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookingJSON(b))
}

type shareCredentialsRequest struct {
	Credentials string `json:"credentials"`
}

// ShareCredentialsHandler handles POST /bookings/{bookingId}/credentials.
// It records the provider's response inside the response window.
func (h *HandlerProvider) ShareCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	providerID, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookingID, err := parseBookingIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req shareCredentialsRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Credentials == "" {
		writeError(w, http.StatusBadRequest, "credentials required")
		return
	}

	b, err := h.engine.RecordProviderResponse(r.Context(), bookingID, providerID, req.Credentials)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookingJSON(b))
}

// OpenDisputeHandler handles POST /bookings/{bookingId}/dispute
func (h *HandlerProvider) OpenDisputeHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookingID, err := parseBookingIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.engine.OpenDispute(r.Context(), bookingID, caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "disputed"})
}

// GetBalanceHandler handles GET /accounts/{accountId}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid accountId in path")
		return
	}

	balance, err := h.wallet.GetBalance(r.Context(), accountID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": accountID,
		"balance":   balance,
	})
}

type topUpRequest struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// TopUpHandler handles POST /accounts/{accountId}/topup. This is the
// payment-gateway adapter surface: the gateway reports funds received and
// the wallet credits them.
func (h *HandlerProvider) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid accountId in path")
		return
	}

	var req topUpRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entryID, err := h.wallet.TopUp(r.Context(), accountID, req.Amount, req.Reference)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entryId": entryID})
}

// GetEntriesHandler handles GET /accounts/{accountId}/entries
func (h *HandlerProvider) GetEntriesHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid accountId in path")
		return
	}

	entries, err := h.wallet.Entries(r.Context(), accountID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// ReconcileHandler handles GET /accounts/{accountId}/reconcile
func (h *HandlerProvider) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := parseAccountIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid accountId in path")
		return
	}

	report, err := h.wallet.Reconcile(r.Context(), accountID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

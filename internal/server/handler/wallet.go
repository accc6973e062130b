package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// WalletService is the slice of the custodial wallet registry the HTTP API
// exposes. Key export deliberately stays off the HTTP surface.
type WalletService interface {
	GetOrCreate(ctx context.Context, userID int64) (*domain.Wallet, error)
	Get(ctx context.Context, userID int64) (*domain.Wallet, error)
}

// WalletHandler serves the custodial wallet endpoints.
type WalletHandler struct {
	svc    WalletService
	logger *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(svc WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "wallet")),
	}
}

// walletJSON is the wire shape of a wallet. The sealed key never leaves the
// store through this API.
type walletJSON struct {
	UserID    int64     `json:"userId"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

func parseUserID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(pathParam(r, "userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CreateWallet returns the user's wallet, creating one on first call.
// POST /api/wallets/{userId}
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	wallet, err := h.svc.GetOrCreate(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "wallet creation failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walletJSON{
		UserID:    wallet.UserID,
		Address:   wallet.Address,
		CreatedAt: wallet.CreatedAt,
	})
}

// GetWallet returns the user's wallet or 404.
// GET /api/wallets/{userId}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	wallet, err := h.svc.Get(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walletJSON{
		UserID:    wallet.UserID,
		Address:   wallet.Address,
		CreatedAt: wallet.CreatedAt,
	})
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/subshare/subshare/internal/services/booking"
	"github.com/subshare/subshare/internal/services/wallet"
)

// NewServer creates and returns a configured *http.Server for the booking API.
func NewServer(port uint16, engine *booking.Engine, walletSvc *wallet.Service) *http.Server {
	mux := NewRouter(engine, walletSvc)

	addr := fmt.Sprintf(":%d", port)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

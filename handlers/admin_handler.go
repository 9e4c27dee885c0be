package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Poneaswaran/College-Management-System-Backend/middleware"
	"github.com/Poneaswaran/College-Management-System-Backend/services"
	"github.com/Poneaswaran/College-Management-System-Backend/utils"
)

// RevocationPurger removes expired ledger rows
type RevocationPurger interface {
	PurgeExpired(ctx context.Context) (services.PurgeResult, error)
}

// PurgeResponse reports how many rows a purge removed
type PurgeResponse struct {
	Revocations  int64 `json:"revocations"`
	Sessions     int64 `json:"sessions"`
	GuardianOTPs int64 `json:"guardianOtps"`
}

// AdminHandler serves operator endpoints. Routes must be gated by the caller.
type AdminHandler struct {
	purger RevocationPurger
	logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(purger RevocationPurger, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		purger: purger,
		logger: logger,
	}
}

// HandlePurgeRevocations handles POST /admin/revocations/purge
func (h *AdminHandler) HandlePurgeRevocations(w http.ResponseWriter, r *http.Request) {
	result, err := h.purger.PurgeExpired(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	fields := []zap.Field{zap.String("request_id", middleware.GetRequestIDFromContext(r.Context()))}
	if p := middleware.GetIdentityFromContext(r.Context()).Principal(); p != nil {
		fields = append(fields, zap.String("principal_id", p.ID.String()))
	}
	h.logger.Info("revocation purge requested", append(fields,
		zap.Int64("revocations", result.Revocations),
		zap.Int64("sessions", result.Sessions),
		zap.Int64("guardian_otps", result.GuardianOTPs))...)

	_ = utils.WriteJSON(w, http.StatusOK, PurgeResponse{
		Revocations:  result.Revocations,
		Sessions:     result.Sessions,
		GuardianOTPs: result.GuardianOTPs,
	})
}

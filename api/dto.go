/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Points travel as decimal strings ("100"), never JSON numbers, so large
  balances survive every client's JSON parser intact.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/points-ledger/ledger"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ServiceDTO represents the registered service in API responses.
type ServiceDTO struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// TransactionDTO represents a ledger transaction in API responses.
type TransactionDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Address     string `json:"address"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// UserDTO represents a ledger account in API responses.
type UserDTO struct {
	ID              string           `json:"id"`
	TotalPoints     string           `json:"total_points"`
	AvailablePoints string           `json:"available_points"`
	TotalRedeemed   string           `json:"total_redeemed"`
	Transactions    []TransactionDTO `json:"transactions"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

// AnalyticsDTO carries the platform-wide aggregates.
type AnalyticsDTO struct {
	TotalPoints       string `json:"total_points"`
	AvailablePoints   string `json:"available_points"`
	RedeemedPoints    string `json:"redeemed_points"`
	TotalTransactions int64  `json:"total_transactions"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RegisterServiceRequest bootstraps the authorized service.
type RegisterServiceRequest struct {
	ServiceID string `json:"service_id"`
}

// CreateUserRequest initializes a ledger account.
type CreateUserRequest struct {
	UserID string `json:"user_id"`
}

// AddPointsRequest credits points to a user.
type AddPointsRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// RequestRedeemRequest opens a pending redemption.
type RequestRedeemRequest struct {
	Amount      string `json:"amount"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// UpdateRedeemStatusRequest resolves a pending redemption.
type UpdateRedeemStatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toServiceDTO(svc *ledger.Service) ServiceDTO {
	return ServiceDTO{
		ID:        svc.ID.String(),
		CreatedAt: svc.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          tx.ID,
		UserID:      tx.UserID.String(),
		Amount:      tx.Amount.String(),
		Address:     tx.Address,
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   tx.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toUserDTO(u *ledger.User) UserDTO {
	return UserDTO{
		ID:              u.ID.String(),
		TotalPoints:     u.TotalPoints.String(),
		AvailablePoints: u.AvailablePoints.String(),
		TotalRedeemed:   u.TotalRedeemed.String(),
		Transactions:    toTransactionDTOs(u.Transactions),
		CreatedAt:       u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       u.UpdatedAt.Format(time.RFC3339),
	}
}

func toAnalyticsDTO(a *ledger.Analytics) AnalyticsDTO {
	return AnalyticsDTO{
		TotalPoints:       a.TotalPoints.String(),
		AvailablePoints:   a.AvailablePoints.String(),
		RedeemedPoints:    a.RedeemedPoints.String(),
		TotalTransactions: a.TotalTransactions,
	}
}

package server

import (
	"net/url"
	"time"

	"creditflow/internal/middleware"
	"creditflow/internal/models"
	"creditflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// SubmitCreditRequestInput is the body of POST /api/credit/requests. A cashier field
// sent by the client is ignored; the authenticated actor is the cashier.
type SubmitCreditRequestInput struct {
	Customer string          `json:"customer"`
	Amount   decimal.Decimal `json:"amount" swaggertype:"number"`
	Reason   string          `json:"reason"`
}

// VerifyCodeInput is the body of POST /api/credit/verify.
type VerifyCodeInput struct {
	Code     string `json:"code"`
	Customer string `json:"customer"`
}

// GenerateCodeInput is the body of POST /api/credit/codes.
type GenerateCodeInput struct {
	Cashier    string `json:"cashier"`
	Customer   string `json:"customer"`
	TTLMinutes *int   `json:"ttlMinutes"`
}

// ListCreditRequests handles GET /api/credit/requests.
// @Summary List credit requests
// @Description All credit requests in submission order.
// @Tags credit
// @Produce json
// @Success 200 {array} models.CreditRequest
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/requests [get]
func (s *Server) ListCreditRequests(c *fiber.Ctx) error {
	reqs, err := s.credit.List(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(reqs)
}

// GetCreditRequest handles GET /api/credit/requests/:id.
// @Summary Get a credit request
// @Tags credit
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.CreditRequest
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/requests/{id} [get]
func (s *Server) GetCreditRequest(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return nil
	}
	req, err := s.credit.Get(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(req)
}

// SubmitCreditRequest handles POST /api/credit/requests.
// @Summary Submit a credit request
// @Description Records a pending request on behalf of the authenticated cashier. Honours Idempotency-Key.
// @Tags credit
// @Accept json
// @Produce json
// @Param request body SubmitCreditRequestInput true "Request"
// @Param Idempotency-Key header string false "Replay key"
// @Success 201 {object} models.CreditRequest
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/requests [post]
func (s *Server) SubmitCreditRequest(c *fiber.Ctx) error {
	var in SubmitCreditRequestInput
	if !parseBody(c, &in) {
		return nil
	}
	req, err := s.credit.Submit(c.UserContext(), middleware.Actor(c), service.SubmitInput{
		Customer: in.Customer,
		Amount:   in.Amount,
		Reason:   in.Reason,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// ApproveCreditRequest handles PUT /api/credit/requests/:id/approve.
// @Summary Approve a credit request
// @Description Approves a pending request and issues a verification code bound to its customer.
// @Tags credit-admin
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.CreditRequest
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/requests/{id}/approve [put]
func (s *Server) ApproveCreditRequest(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return nil
	}
	req, err := s.credit.Approve(c.UserContext(), middleware.Actor(c), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(req)
}

// RejectCreditRequest handles PUT /api/credit/requests/:id/reject.
// @Summary Reject a credit request
// @Tags credit-admin
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.CreditRequest
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/requests/{id}/reject [put]
func (s *Server) RejectCreditRequest(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return nil
	}
	req, err := s.credit.Reject(c.UserContext(), middleware.Actor(c), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(req)
}

// VerifyCode handles POST /api/credit/verify.
// @Summary Redeem a verification code
// @Description Consumes a code for a customer. Rejections come back as 200 with valid=false and a reason.
// @Tags credit
// @Accept json
// @Produce json
// @Param request body VerifyCodeInput true "Code and customer"
// @Success 200 {object} models.RedeemResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/verify [post]
func (s *Server) VerifyCode(c *fiber.Ctx) error {
	var in VerifyCodeInput
	if !parseBody(c, &in) {
		return nil
	}
	result, err := s.credit.Redeem(c.UserContext(), middleware.Actor(c), in.Code, in.Customer)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(result)
}

// GetCustomerHistory handles GET /api/credit/history/:customer.
// @Summary Customer credit history
// @Tags credit
// @Produce json
// @Param customer path string true "Customer name"
// @Success 200 {array} models.HistoryEntry
// @Security BearerAuth
// @Router /credit/history/{customer} [get]
func (s *Server) GetCustomerHistory(c *fiber.Ctx) error {
	// Params are not unescaped by default; names contain spaces.
	customer, err := url.PathUnescape(c.Params("customer"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("customer", "Invalid customer"))
	}
	entries, err := s.credit.History(c.UserContext(), customer)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(entries)
}

// GenerateCode handles POST /api/credit/codes.
// @Summary Issue a free-standing verification code
// @Tags credit-admin
// @Accept json
// @Produce json
// @Param request body GenerateCodeInput false "Options"
// @Success 201 {object} models.VerificationCode
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/codes [post]
func (s *Server) GenerateCode(c *fiber.Ctx) error {
	var in GenerateCodeInput
	if len(c.Body()) > 0 && !parseBody(c, &in) {
		return nil
	}
	opts := service.MintOptions{Label: in.Cashier, BoundCustomer: in.Customer}
	if in.TTLMinutes != nil {
		if *in.TTLMinutes <= 0 {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("ttlMinutes", "ttlMinutes must be positive"))
		}
		opts.TTL = time.Duration(*in.TTLMinutes) * time.Minute
	}
	code, err := s.credit.Mint(c.UserContext(), middleware.Actor(c), opts)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(code)
}

// ListCodes handles GET /api/credit/codes.
// @Summary List verification codes
// @Tags credit-admin
// @Produce json
// @Success 200 {array} models.VerificationCode
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/codes [get]
func (s *Server) ListCodes(c *fiber.Ctx) error {
	codes, err := s.credit.ListCodes(c.UserContext())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(codes)
}

// RevokeCode handles DELETE /api/credit/codes/:id.
// @Summary Revoke a verification code
// @Tags credit-admin
// @Param id path string true "Code ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/codes/{id} [delete]
func (s *Server) RevokeCode(c *fiber.Ctx) error {
	if err := s.credit.Revoke(c.UserContext(), middleware.Actor(c), c.Params("id")); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetActivity handles GET /api/credit/activity.
// @Summary Recent workflow activity
// @Tags credit-admin
// @Produce json
// @Param limit query int false "Max entries (default 50, max 200)"
// @Success 200 {array} models.ActivityEntry
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /credit/activity [get]
func (s *Server) GetActivity(c *fiber.Ctx) error {
	entries, err := s.credit.Activity(c.UserContext(), parseLimit(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(entries)
}

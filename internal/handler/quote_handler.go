package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/quote-engine/internal/domain"
	"github.com/kursadbilgin/quote-engine/internal/service"
)

type QuoteService interface {
	Execute(ctx context.Context, userID *string, criteria domain.QuoteCriteria) (*service.QuoteResult, error)
}

type QuoteHandler struct {
	service QuoteService
}

func NewQuoteHandler(service QuoteService) (*QuoteHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("quote service is required")
	}
	return &QuoteHandler{service: service}, nil
}

func RegisterQuoteRoutes(router fiber.Router, service QuoteService) error {
	h, err := NewQuoteHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/quotes", h.CreateQuote)

	return nil
}

type quoteResponse struct {
	RequestID          string         `json:"requestId"`
	Status             string         `json:"status"`
	Quotes             []domain.Quote `json:"quotes"`
	ProvidersRequested []string       `json:"providersRequested"`
	ProvidersResponded []string       `json:"providersResponded"`
}

type quoteFailureResponse struct {
	Error              string   `json:"error"`
	RequestID          string   `json:"requestId"`
	ProvidersRequested []string `json:"providersRequested"`
}

func (h *QuoteHandler) CreateQuote(c *fiber.Ctx) error {
	var criteria domain.QuoteCriteria
	if err := c.BodyParser(&criteria); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var userID *string
	if value := strings.TrimSpace(c.Get(UserIDHeader)); value != "" {
		userID = &value
	}

	result, err := h.service.Execute(c.UserContext(), userID, criteria)
	if err != nil {
		if errors.Is(err, domain.ErrNoQuotesAvailable) && result != nil {
			message := err.Error()
			if result.ErrorMessage != nil {
				message = *result.ErrorMessage
			}
			return c.Status(fiber.StatusBadGateway).JSON(quoteFailureResponse{
				Error:              message,
				RequestID:          result.RequestID,
				ProvidersRequested: nonNil(result.ProvidersRequested),
			})
		}
		return toHTTPError(err)
	}

	quotes := result.Quotes
	if quotes == nil {
		quotes = []domain.Quote{}
	}

	return c.Status(fiber.StatusOK).JSON(quoteResponse{
		RequestID:          result.RequestID,
		Status:             result.Status.String(),
		Quotes:             quotes,
		ProvidersRequested: nonNil(result.ProvidersRequested),
		ProvidersResponded: nonNil(result.ProvidersResponded),
	})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

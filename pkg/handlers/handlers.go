package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oderahub/eventhash/pkg/issuer"
	"github.com/oderahub/eventhash/pkg/mirror"
	"github.com/oderahub/eventhash/pkg/models"
	"github.com/oderahub/eventhash/pkg/payments"
	"github.com/oderahub/eventhash/pkg/registry"
	"github.com/oderahub/eventhash/pkg/verify"
)

// TicketService is the ledger-facing surface the handlers call into.
type TicketService interface {
	DeployEvent(ctx context.Context, req issuer.DeployEventRequest) (*issuer.DeployEventResult, error)
	CreateTickets(ctx context.Context, eventID string, maxTickets int64, ticketPrice float64) (*issuer.CreateTicketsResult, error)
	PurchaseTicket(ctx context.Context, req issuer.PurchaseRequest) (*issuer.PurchaseResult, error)
	CheckInTicket(ctx context.Context, req issuer.CheckInRequest) (*issuer.CheckInResult, error)
}

// Make sure we conform to the interface
var _ TicketService = (*issuer.Service)(nil)

// ApiHandler holds the application's dependencies: the event registry and
// the ticket issuance service.
type ApiHandler struct {
	Store   registry.Store
	Tickets TicketService
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(store registry.Store, tickets TicketService) *ApiHandler {
	return &ApiHandler{Store: store, Tickets: tickets}
}

// Routes returns the event API routes, to be mounted under /api/events.
func (h *ApiHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateEvent)
	r.Get("/", h.ListEvents)
	r.Post("/deploy", h.DeployEvent)
	r.Post("/tickets", h.CreateTickets)
	r.Post("/purchase", h.PurchaseTicket)
	r.Post("/checkin", h.CheckInTicket)
	r.Get("/{eventId}", h.GetEvent)
	return r
}

// CreateEvent handles the logic for registering a new event listing. No
// ledger entities are created until the listing is deployed.
func (h *ApiHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if event.Name == "" {
		respondError(w, http.StatusBadRequest, "ValidationError", "name is required")
		return
	}
	if event.Price < 0 {
		respondError(w, http.StatusBadRequest, "ValidationError", "price must not be negative")
		return
	}

	created, err := h.Store.CreateEvent(r.Context(), &event)
	if err != nil {
		if errors.Is(err, registry.ErrEventExists) {
			respondError(w, http.StatusConflict, "DuplicateEvent", "Event already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to create event: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// ListEvents handles the logic for retrieving all event listings.
func (h *ApiHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.ListEvents(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// GetEvent handles the logic for retrieving a single event listing.
func (h *ApiHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	event, err := h.Store.GetEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, registry.ErrEventNotFound) {
			respondError(w, http.StatusNotFound, "", "Event not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to retrieve event: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, event)
}

type deployEventRequest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Date            int64   `json:"date"`
	Location        string  `json:"location"`
	Price           float64 `json:"price"`
	Category        string  `json:"category"`
	BannerURL       string  `json:"bannerUrl"`
	MaxTickets      int64   `json:"maxTickets"`
	VendorAccountID string  `json:"vendorAccountId"`
}

// DeployEvent creates the event's consensus topic and registers the
// listing with its on-chain identity.
func (h *ApiHandler) DeployEvent(w http.ResponseWriter, r *http.Request) {
	var req deployEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "ValidationError", "name is required")
		return
	}
	if req.MaxTickets <= 0 {
		respondError(w, http.StatusBadRequest, "ValidationError", "maxTickets must be positive")
		return
	}

	timer := time.Now()
	deployed, err := h.Tickets.DeployEvent(r.Context(), issuer.DeployEventRequest{
		Name:        req.Name,
		Description: req.Description,
		Date:        req.Date,
		Location:    req.Location,
		TicketPrice: req.Price,
		MaxTickets:  req.MaxTickets,
		EventAdmin:  req.VendorAccountID,
	})
	issuanceDuration.WithLabelValues("deploy").Observe(time.Since(timer).Seconds())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to deploy event: %v", err))
		return
	}

	event, err := h.Store.CreateEvent(r.Context(), &models.Event{
		Name:                req.Name,
		Description:         req.Description,
		Date:                req.Date,
		Location:            req.Location,
		Price:               req.Price,
		Category:            req.Category,
		BannerURL:           req.BannerURL,
		MaxTickets:          req.MaxTickets,
		VendorAccountID:     req.VendorAccountID,
		HederaEventID:       deployed.EventID,
		HederaTopicID:       deployed.TopicID,
		HederaTransactionID: deployed.TransactionID,
	})
	if err != nil {
		// The topic exists on the ledger; report it so the listing can be
		// re-registered instead of re-deployed.
		respondErrorData(w, http.StatusInternalServerError, "",
			fmt.Sprintf("Event deployed but registration failed: %v", err),
			map[string]string{"eventId": deployed.EventID, "transactionId": deployed.TransactionID})
		return
	}

	respondJSON(w, http.StatusCreated, event)
}

type createTicketsRequest struct {
	EventID     string  `json:"eventId"`
	MaxTickets  int64   `json:"maxTickets"`
	TicketPrice float64 `json:"ticketPrice"`
}

// CreateTickets creates the NFT ticket collection for a deployed event.
func (h *ApiHandler) CreateTickets(w http.ResponseWriter, r *http.Request) {
	var req createTicketsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.EventID == "" {
		respondError(w, http.StatusBadRequest, "ValidationError", "eventId is required")
		return
	}
	if req.MaxTickets <= 0 {
		respondError(w, http.StatusBadRequest, "ValidationError", "maxTickets must be positive")
		return
	}

	if _, err := h.Store.GetEventByHederaID(r.Context(), req.EventID); err != nil {
		if errors.Is(err, registry.ErrEventNotFound) {
			respondError(w, http.StatusNotFound, "", "Event not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to look up event: %v", err))
		return
	}

	timer := time.Now()
	created, err := h.Tickets.CreateTickets(r.Context(), req.EventID, req.MaxTickets, req.TicketPrice)
	issuanceDuration.WithLabelValues("tickets").Observe(time.Since(timer).Seconds())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to create tickets: %v", err))
		return
	}

	if err := h.Store.SetTicketToken(r.Context(), req.EventID, created.TicketTokenID, req.TicketPrice); err != nil {
		respondErrorData(w, http.StatusInternalServerError, "",
			fmt.Sprintf("Tickets created but registration failed: %v", err),
			map[string]string{"ticketTokenId": created.TicketTokenID})
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"ticketTokenId": created.TicketTokenID,
		"transactionId": created.TransactionID,
	})
}

type purchaseTicketRequest struct {
	EventID        string   `json:"eventId"`
	BuyerAccountID string   `json:"buyerAccountId"`
	PaymentTxID    string   `json:"paymentTxId"`
	TicketTokenID  string   `json:"ticketTokenId"`
	TicketPrice    *float64 `json:"ticketPrice"`
}

type purchaseTicketResponse struct {
	TicketSerialNumber int64  `json:"ticketSerialNumber"`
	TransactionID      string `json:"transactionId"`
	TicketTokenID      string `json:"ticketTokenId"`
}

// PurchaseTicket handles payment-verified ticket issuance. The payment
// must already be finalized on the ledger; the handler resolves the ticket
// collection and price from the registry when the client omits them.
func (h *ApiHandler) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	var req purchaseTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.EventID == "" || req.BuyerAccountID == "" || req.PaymentTxID == "" {
		respondError(w, http.StatusBadRequest, "ValidationError", "eventId, buyerAccountId and paymentTxId are required")
		return
	}

	event, err := h.Store.GetEventByHederaID(r.Context(), req.EventID)
	if err != nil {
		if errors.Is(err, registry.ErrEventNotFound) {
			respondError(w, http.StatusNotFound, "", "Event not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to look up event: %v", err))
		return
	}

	tokenID := req.TicketTokenID
	if tokenID == "" {
		tokenID = event.HederaTicketTokenID
	}
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "ValidationError", "Event has no ticket collection yet")
		return
	}
	price := event.Price
	if req.TicketPrice != nil {
		price = *req.TicketPrice
	}

	timer := time.Now()
	result, err := h.Tickets.PurchaseTicket(r.Context(), issuer.PurchaseRequest{
		EventID:          req.EventID,
		TicketTokenID:    tokenID,
		BuyerAccountID:   req.BuyerAccountID,
		PaymentReference: req.PaymentTxID,
		TicketPriceHbar:  price,
	})
	issuanceDuration.WithLabelValues("purchase").Observe(time.Since(timer).Seconds())
	if err != nil {
		h.respondPurchaseError(w, err)
		return
	}

	purchasesTotal.WithLabelValues("success").Inc()
	respondJSON(w, http.StatusCreated, purchaseTicketResponse{
		TicketSerialNumber: result.SerialNumber,
		TransactionID:      result.TransactionID,
		TicketTokenID:      result.TicketTokenID,
	})
}

// respondPurchaseError translates issuance failures into distinct status
// codes so clients can tell a retryable condition from a terminal one.
func (h *ApiHandler) respondPurchaseError(w http.ResponseWriter, err error) {
	var issuanceErr *issuer.IssuanceError
	var queryErr *mirror.QueryError

	switch {
	case errors.Is(err, payments.ErrDuplicatePayment):
		purchasesTotal.WithLabelValues("duplicate").Inc()
		respondError(w, http.StatusConflict, "DuplicatePayment", "Payment reference already consumed")

	case errors.Is(err, verify.ErrInvalidDirection):
		purchasesTotal.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusUnprocessableEntity, "InvalidDirection", "Payment transfers do not flow from buyer to treasury")

	case errors.Is(err, verify.ErrInsufficientAmount):
		purchasesTotal.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusUnprocessableEntity, "InsufficientAmount", "Payment amount is below the ticket price")

	case errors.Is(err, issuer.ErrNotAssociated):
		purchasesTotal.WithLabelValues("not_associated").Inc()
		respondError(w, http.StatusBadRequest, "NotAssociated", "Buyer account is not associated with the ticket collection")

	case errors.Is(err, mirror.ErrNotFound):
		purchasesTotal.WithLabelValues("mirror_error").Inc()
		respondError(w, http.StatusBadGateway, "MirrorQueryError", "Payment transaction not found on the mirror node; it may not be indexed yet")

	case errors.As(err, &queryErr):
		purchasesTotal.WithLabelValues("mirror_error").Inc()
		respondError(w, http.StatusBadGateway, "MirrorQueryError", fmt.Sprintf("Mirror node query failed: %v", err))

	case errors.As(err, &issuanceErr):
		purchasesTotal.WithLabelValues("issuance_error").Inc()
		var partial any
		if issuanceErr.SerialNumber > 0 {
			partial = purchaseTicketResponse{
				TicketSerialNumber: issuanceErr.SerialNumber,
				TransactionID:      issuanceErr.MintTransactionID,
			}
		}
		respondErrorData(w, http.StatusInternalServerError, "IssuanceError",
			fmt.Sprintf("Ticket issuance failed at %s: %v", issuanceErr.Step, issuanceErr.Err), partial)

	default:
		purchasesTotal.WithLabelValues("error").Inc()
		respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to purchase ticket: %v", err))
	}
}

type checkInRequest struct {
	EventID        string `json:"eventId"`
	TokenID        string `json:"tokenId"`
	SerialNumber   int64  `json:"serialNumber"`
	OwnerAccountID string `json:"ownerAccountId"`
}

// CheckInTicket verifies current on-chain ownership and logs the check-in
// to the event topic.
func (h *ApiHandler) CheckInTicket(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.EventID == "" || req.SerialNumber <= 0 {
		respondError(w, http.StatusBadRequest, "ValidationError", "eventId and a positive serialNumber are required")
		return
	}

	tokenID := req.TokenID
	if tokenID == "" {
		event, err := h.Store.GetEventByHederaID(r.Context(), req.EventID)
		if err != nil {
			if errors.Is(err, registry.ErrEventNotFound) {
				respondError(w, http.StatusNotFound, "", "Event not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to look up event: %v", err))
			return
		}
		tokenID = event.HederaTicketTokenID
	}
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "ValidationError", "Event has no ticket collection")
		return
	}

	timer := time.Now()
	result, err := h.Tickets.CheckInTicket(r.Context(), issuer.CheckInRequest{
		EventID:        req.EventID,
		TicketTokenID:  tokenID,
		SerialNumber:   req.SerialNumber,
		OwnerAccountID: req.OwnerAccountID,
	})
	issuanceDuration.WithLabelValues("checkin").Observe(time.Since(timer).Seconds())
	if err != nil {
		var mismatch *issuer.OwnershipMismatchError
		var queryErr *mirror.QueryError
		switch {
		case errors.As(err, &mismatch):
			checkinsTotal.WithLabelValues("mismatch").Inc()
			respondError(w, http.StatusBadRequest, "ValidationError", mismatch.Error())
		case errors.Is(err, mirror.ErrNotFound):
			checkinsTotal.WithLabelValues("not_found").Inc()
			respondError(w, http.StatusNotFound, "", "Ticket serial not found")
		case errors.As(err, &queryErr):
			checkinsTotal.WithLabelValues("mirror_error").Inc()
			respondError(w, http.StatusBadGateway, "MirrorQueryError", fmt.Sprintf("Mirror node query failed: %v", err))
		default:
			checkinsTotal.WithLabelValues("error").Inc()
			respondError(w, http.StatusInternalServerError, "", fmt.Sprintf("Failed to check in ticket: %v", err))
		}
		return
	}

	checkinsTotal.WithLabelValues("success").Inc()
	respondJSON(w, http.StatusCreated, map[string]any{
		"transactionId": result.TransactionID,
		"owner":         result.Owner,
		"serialNumber":  req.SerialNumber,
	})
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

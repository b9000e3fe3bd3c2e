package handler

import (
	"io"
	"net/http"

	"podium/internal/models"
	"podium/internal/payment"
	"podium/internal/util"

	"github.com/gin-gonic/gin"
)

// PaymentHandler exposes purchase initialization, verification and the
// provider webhook.
type PaymentHandler struct {
	Service  *payment.Service
	PageSize int
}

func NewPaymentHandler(svc *payment.Service, pageSize int) *PaymentHandler {
	return &PaymentHandler{Service: svc, PageSize: pageSize}
}

type initializeReq struct {
	Package string `json:"package" binding:"required"`
}

func (h *PaymentHandler) Initialize(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req initializeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid request body")
		return
	}

	intent, redirectURL, err := h.Service.Initialize(c.Request.Context(), user, req.Package)
	if err != nil {
		fail(c, err)
		return
	}

	util.Success(c, util.Response{
		"reference":    intent.Reference,
		"redirect_url": redirectURL,
		"amount_minor": intent.AmountMinor,
		"currency":     intent.Currency,
		"credits":      intent.CreditsPurchased,
	})
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.Service.VerifyForUser(c.Request.Context(), user.ID, c.Param("reference"))
	if err != nil {
		fail(c, err)
		return
	}

	util.Success(c, util.Response{
		"success":       res.Success,
		"credits_added": res.CreditsAdded,
		"new_balance":   res.NewBalance,
		"message":       res.Message,
	})
}

func (h *PaymentHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, size := pageParams(c, h.PageSize)
	intents, total, err := h.Service.History(user.ID, page, size)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "failed to load payments")
		return
	}

	items := make([]util.Response, 0, len(intents))
	for i := range intents {
		items = append(items, intentView(&intents[i]))
	}
	util.Success(c, util.Response{
		"payments":  items,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

// Webhook receives provider notifications. The signature header is checked
// against the raw body before anything is parsed.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "failed to read body")
		return
	}

	sig := c.GetHeader("x-paystack-signature")
	if err := h.Service.HandleWebhook(c.Request.Context(), sig, body); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "webhook rejected")
		return
	}
	util.Success(c, util.Response{"message": "ok"})
}

func intentView(p *models.PaymentIntent) util.Response {
	return util.Response{
		"reference":    p.Reference,
		"package":      p.PackageSlug,
		"amount_minor": p.AmountMinor,
		"currency":     p.Currency,
		"credits":      p.CreditsPurchased,
		"status":       p.Status,
		"created_at":   p.CreatedAt,
		"paid_at":      p.PaidAt,
	}
}

package donation

import (
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/middleware"
	"crowdfunding-platform/internal/service"
	"crowdfunding-platform/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DonationHandler 处理捐款与退款请求
type DonationHandler struct {
	donationService service.DonationServiceInterface
}

func NewDonationHandler(donationService service.DonationServiceInterface) *DonationHandler {
	return &DonationHandler{donationService: donationService}
}

// CreateDonation 处理捐款请求
func (h *DonationHandler) CreateDonation(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)

	var req struct {
		CampaignID    int     `json:"campaignId" binding:"required"`
		Amount        float64 `json:"amount" binding:"required,gt=0"`
		PaymentMethod string  `json:"paymentMethod" binding:"omitempty,oneof=upi card netbanking wallet"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Logger.Warn("捐款失败，无效的请求数据", zap.Error(err), zap.Int("user_id", p.UserID))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid donation data", err))
		return
	}

	result, err := h.donationService.Create(c.Request.Context(), p.UserID, service.CreateDonationInput{
		CampaignID:    req.CampaignID,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	data := gin.H{"donation": result.Donation}
	if result.Warning != "" {
		data["warning"] = result.Warning
	}
	errors.HandleCreated(c, data, result.Message)
}

// MyDonations 当前用户的捐款记录
func (h *DonationHandler) MyDonations(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	h.listByDonor(c, p.UserID)
}

// UserDonations 指定用户的捐款记录，本人或管理员可查看
func (h *DonationHandler) UserDonations(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		errors.HandleError(c, errors.New(errors.ErrValidation, "Invalid user ID"))
		return
	}
	h.listByDonor(c, userID)
}

func (h *DonationHandler) listByDonor(c *gin.Context, donorID int) {
	donations, err := h.donationService.ListByDonor(c.Request.Context(), donorID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, donations, "")
}

// RequestRefund 捐款人申请退款
func (h *DonationHandler) RequestRefund(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)

	var req struct {
		DonationID int    `json:"donationId" binding:"required"`
		Reason     string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid refund request", err))
		return
	}

	donation, err := h.donationService.RequestRefund(c.Request.Context(), p.UserID, req.DonationID, req.Reason)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, donation, "Refund requested")
}

// ProcessRefund 管理员处理退款
func (h *DonationHandler) ProcessRefund(c *gin.Context) {
	var req struct {
		DonationID int   `json:"donationId" binding:"required"`
		Approve    *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "donationId and approve are required", err))
		return
	}

	donation, err := h.donationService.ProcessRefund(c.Request.Context(), req.DonationID, *req.Approve)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	message := "Refund rejected"
	if *req.Approve {
		message = "Refund approved"
	}
	errors.HandleSuccess(c, donation, message)
}

// PendingRefunds 待处理的退款申请
func (h *DonationHandler) PendingRefunds(c *gin.Context) {
	donations, err := h.donationService.ListPendingRefunds(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, donations, "")
}

// SuspiciousDonations 被风控标记的捐款
func (h *DonationHandler) SuspiciousDonations(c *gin.Context) {
	donations, err := h.donationService.ListSuspicious(c.Request.Context())
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, donations, "")
}

package campaign

import (
	"crowdfunding-platform/internal/errors"
	"crowdfunding-platform/internal/middleware"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/service"
	"crowdfunding-platform/internal/storage"
	"crowdfunding-platform/internal/util"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CampaignHandler 处理与活动相关的HTTP请求
type CampaignHandler struct {
	campaignService  service.CampaignServiceInterface
	ratingService    service.RatingServiceInterface
	analyticsService service.AnalyticsServiceInterface
	uploader         storage.Uploader
}

// NewCampaignHandler 创建一个新的 CampaignHandler 实例
func NewCampaignHandler(
	campaignService service.CampaignServiceInterface,
	ratingService service.RatingServiceInterface,
	analyticsService service.AnalyticsServiceInterface,
	uploader storage.Uploader,
) *CampaignHandler {
	return &CampaignHandler{
		campaignService:  campaignService,
		ratingService:    ratingService,
		analyticsService: analyticsService,
		uploader:         uploader,
	}
}

type createCampaignRequest struct {
	Title        string    `json:"title" form:"title" binding:"required"`
	Description  string    `json:"description" form:"description" binding:"required"`
	TargetAmount float64   `json:"targetAmount" form:"targetAmount" binding:"required,gt=0"`
	EndDate      time.Time `json:"endDate" form:"endDate" binding:"required,future_date"`
}

type updateCampaignRequest struct {
	Title        *string    `json:"title" form:"title"`
	Description  *string    `json:"description" form:"description"`
	TargetAmount *float64   `json:"targetAmount" form:"targetAmount" binding:"omitempty,gt=0"`
	EndDate      *time.Time `json:"endDate" form:"endDate"`
}

// CreateCampaign 创建者提交活动，支持 JSON 或带 image 的表单
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)

	var req createCampaignRequest
	if err := c.ShouldBind(&req); err != nil {
		util.Logger.Warn("创建活动失败，无效的请求数据", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid campaign data", err))
		return
	}

	imageURL, err := h.uploadImage(c)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	campaign, err := h.campaignService.Submit(c.Request.Context(), p.UserID, service.SubmitCampaignInput{
		Title:        req.Title,
		Description:  req.Description,
		TargetAmount: req.TargetAmount,
		EndDate:      req.EndDate,
		ImageURL:     imageURL,
	})
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	errors.HandleCreated(c, campaign, "Campaign submitted for review")
}

// uploadImage 表单中没有 image 时返回空地址
func (h *CampaignHandler) uploadImage(c *gin.Context) (string, error) {
	file, err := c.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return "", nil
		}
		return "", errors.Wrap(errors.ErrValidation, "Invalid image upload", err)
	}
	if !util.IsImageFile(file.Filename) {
		return "", errors.New(errors.ErrValidation, "Only jpg, png, gif or webp images are allowed")
	}

	url, err := h.uploader.UploadFile(c.Request.Context(), file, util.CampaignImagePath(file.Filename))
	if err != nil {
		util.Logger.Error("上传活动图片失败", zap.Error(err), zap.String("filename", file.Filename))
		return "", errors.Wrap(errors.ErrInternal, "failed to upload image", err)
	}
	return url, nil
}

// ListCampaigns 查询活动列表
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.campaignService.List(c.Request.Context(), model.CampaignFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
	})
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, campaigns, "")
}

// MyCampaigns 创建者查看自己的活动
func (h *CampaignHandler) MyCampaigns(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	campaigns, err := h.campaignService.ListByCreator(c.Request.Context(), p.UserID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, campaigns, "")
}

// Analytics 创建者的活动统计
func (h *CampaignHandler) Analytics(c *gin.Context) {
	p, _ := middleware.CurrentUser(c)
	analytics, err := h.analyticsService.CreatorAnalytics(c.Request.Context(), p.UserID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, analytics, "")
}

// GetCampaign 获取单个活动
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	campaign, err := h.campaignService.Get(c.Request.Context(), id)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, campaign, "")
}

// UpdateCampaign 创建者修改活动
func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	p, _ := middleware.CurrentUser(c)

	var req updateCampaignRequest
	if err := c.ShouldBind(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid campaign data", err))
		return
	}

	input := service.EditCampaignInput{
		Title:        req.Title,
		Description:  req.Description,
		TargetAmount: req.TargetAmount,
		EndDate:      req.EndDate,
	}
	imageURL, err := h.uploadImage(c)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	if imageURL != "" {
		input.ImageURL = &imageURL
	}

	campaign, err := h.campaignService.Edit(c.Request.Context(), id, p.UserID, input)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, campaign, "Campaign updated")
}

// DeleteCampaign 创建者删除待审核的活动
func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	p, _ := middleware.CurrentUser(c)

	if err := h.campaignService.Delete(c.Request.Context(), id, p.UserID); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, nil, "Campaign deleted")
}

// ApproveCampaign 管理员审核通过
func (h *CampaignHandler) ApproveCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	p, _ := middleware.CurrentUser(c)

	campaign, err := h.campaignService.Approve(c.Request.Context(), id, p.UserID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, campaign, "Campaign approved")
}

// RejectCampaign 管理员驳回活动
func (h *CampaignHandler) RejectCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}

	var req struct {
		RejectionReason string `json:"rejectionReason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid request body", err))
		return
	}

	campaign, err := h.campaignService.Reject(c.Request.Context(), id, req.RejectionReason)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, campaign, "Campaign rejected")
}

// RateCampaign 捐款人为活动评分
func (h *CampaignHandler) RateCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	p, _ := middleware.CurrentUser(c)

	var req struct {
		Rating int `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Rating must be an integer between 1 and 5", err))
		return
	}

	result, err := h.ratingService.Rate(c.Request.Context(), id, p.UserID, req.Rating)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, result, "Rating submitted")
}

func campaignID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		errors.HandleError(c, errors.New(errors.ErrValidation, "Invalid campaign ID"))
		return 0, false
	}
	return id, true
}

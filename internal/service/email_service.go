package service

import (
	"context"
	"crowdfunding-platform/config"
	"crowdfunding-platform/internal/common"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/util"
	"crypto/tls"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

// Notifier 向用户发送状态变更通知，发送失败只记录日志
type Notifier interface {
	CampaignReviewed(to string, campaign *model.Campaign)
	RefundProcessed(to string, donation *model.Donation, approved bool)
}

// NopNotifier 未配置 SMTP 时使用
type NopNotifier struct{}

func (NopNotifier) CampaignReviewed(string, *model.Campaign) {}
func (NopNotifier) RefundProcessed(string, *model.Donation, bool) {}

// EmailService 通过 SMTP 发送通知邮件
type EmailService struct {
	smtpHost    string
	smtpPort    int
	username    string
	password    string
	frontendURL string
	send        func(m *mail.Message) error
}

func NewEmailService(cfg config.Config) *EmailService {
	s := &EmailService{
		smtpHost:    cfg.SMTPHost,
		smtpPort:    cfg.SMTPPort,
		username:    cfg.SMTPUsername,
		password:    cfg.SMTPPassword,
		frontendURL: cfg.FrontendURL,
	}
	s.send = s.dialAndSend
	return s
}

func (s *EmailService) CampaignReviewed(to string, campaign *model.Campaign) {
	link := fmt.Sprintf("%s/campaigns/%d", s.frontendURL, campaign.ID)
	title := html.EscapeString(campaign.Title)

	var subject, body string
	if campaign.Status == model.CampaignStatusApproved {
		subject = "Your campaign has been approved"
		body = fmt.Sprintf(`<p>Your campaign <b>%s</b> is now live and accepting donations.</p><p><a href="%s">View campaign</a></p>`,
			title, link)
	} else {
		subject = "Your campaign was not approved"
		body = fmt.Sprintf(`<p>Your campaign <b>%s</b> was rejected.</p><p>Reason: %s</p>`,
			title, html.EscapeString(campaign.RejectionReason))
	}
	s.sendEmailAsync(to, subject, body)
}

func (s *EmailService) RefundProcessed(to string, donation *model.Donation, approved bool) {
	subject := "Your refund request was rejected"
	body := fmt.Sprintf(`<p>Your refund request for donation %s (%.2f) was rejected.</p>`,
		html.EscapeString(donation.TransactionID), donation.Amount)
	if approved {
		subject = "Your refund has been processed"
		body = fmt.Sprintf(`<p>Your donation %s of %.2f has been refunded.</p>`,
			html.EscapeString(donation.TransactionID), donation.Amount)
	}
	s.sendEmailAsync(to, subject, body)
}

func (s *EmailService) sendEmailAsync(to, subject, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.sendEmail(ctx, to, subject, body); err != nil {
			util.Logger.Error("异步发送邮件失败", zap.Error(err), zap.String("to", to))
		}
	}()
}

func (s *EmailService) sendEmail(ctx context.Context, to, subject, body string) error {
	util.Logger.Info("开始发送邮件",
		zap.String("to", to),
		zap.String("subject", subject))

	m := mail.NewMessage()
	m.SetHeader("From", s.username)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	// 网络类错误重试三次
	err := common.WithRetry(ctx, 3, 2*time.Second, func() error {
		return s.send(m)
	})
	if err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	util.Logger.Info("邮件发送成功", zap.String("to", to))
	return nil
}

func (s *EmailService) dialAndSend(m *mail.Message) error {
	d := mail.NewDialer(s.smtpHost, s.smtpPort, s.username, s.password)
	d.Timeout = 20 * time.Second
	d.SSL = s.smtpPort == 465
	d.TLSConfig = &tls.Config{ServerName: s.smtpHost}
	return d.DialAndSend(m)
}

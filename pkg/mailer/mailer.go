// Package mailer 负责通过 SMTP 发送密码重置验证码邮件。
package mailer

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"

	"medsmart-go/internal/config"
	"medsmart-go/pkg/log"
)

// Sender 定义了 OTP 邮件发送的接口。
type Sender interface {
	SendOTP(to, code string) error
}

type smtpSender struct {
	cfg config.MailConfig
}

// NewSender 创建一个基于 SMTP-over-TLS 的邮件发送器。
func NewSender(cfg config.MailConfig) Sender {
	return &smtpSender{cfg: cfg}
}

const otpSubject = "Your Password Reset Code"

const otpBodyFormat = `Your Hospital AI Portal Password Reset Code:

%s

If you did not request this, please ignore this email.
`

// SendOTP 向指定邮箱发送 6 位数字验证码。
// 配置缺失或传输失败都会返回错误，由调用方向用户反馈，不做静默吞掉。
func (s *smtpSender) SendOTP(to, code string) error {
	if s.cfg.Sender == "" || s.cfg.Password == "" {
		return errors.New("邮件凭证未配置")
	}
	if s.cfg.Host == "" {
		return errors.New("SMTP 服务器未配置")
	}
	port := s.cfg.Port
	if port == "" {
		port = "465"
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		s.cfg.Sender, to, otpSubject)
	msg += fmt.Sprintf(otpBodyFormat, code)

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, port)

	// 465 端口为隐式 TLS，需要先建立 TLS 连接再走 SMTP 协议
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return fmt.Errorf("连接 SMTP 服务器失败: %w", err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("建立 SMTP 会话失败: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.cfg.Sender, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP 认证失败: %w", err)
	}

	if err := client.Mail(s.cfg.Sender); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("设置收件人失败: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("打开邮件数据流失败: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	log.Infof("[Mailer] OTP 邮件已发送至 %s", to)
	return client.Quit()
}

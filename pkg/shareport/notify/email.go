// Package notify delivers outbound email notifications for delivery
// events. Notifications are informational only; senders treat failures as
// log-worthy, never fatal.
package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shareport/shareport/pkg/shareport"
)

// Config holds SMTP settings for the email notifier
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // sender address
	FromName string // display name for the From header
	AdminTo  string // address receiving download notifications
	BaseURL  string // public base URL used to build gallery links
}

// EmailNotifier implements shareport.Notifier over plain SMTP
type EmailNotifier struct {
	config Config
}

// New creates an SMTP notifier
func New(config Config) (*EmailNotifier, error) {
	if config.Host == "" || config.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.FromName == "" {
		config.FromName = "Download Portal"
	}
	return &EmailNotifier{config: config}, nil
}

var _ shareport.Notifier = (*EmailNotifier)(nil)

// DownloadOccurred mails the admin that a full archive was downloaded
func (n *EmailNotifier) DownloadOccurred(ctx context.Context, slug string, fileCount int) error {
	if n.config.AdminTo == "" {
		return nil
	}
	subject := fmt.Sprintf("Download: %s", slug)
	body := fmt.Sprintf(
		"A gallery download completed.\r\n\r\nProject: %s\r\nFiles: %d\r\nTime: %s\r\n",
		slug, fileCount, time.Now().Format(time.RFC1123))
	return n.send(ctx, n.config.AdminTo, subject, body)
}

// UploadCommitted mails the client that a new gallery is ready
func (n *EmailNotifier) UploadCommitted(ctx context.Context, meta *shareport.UploadMetadata, recipient string) error {
	if recipient == "" {
		return nil
	}
	title := meta.Title
	if title == "" {
		title = meta.Slug
	}
	subject := fmt.Sprintf("Your photos are ready: %s", title)

	var body strings.Builder
	fmt.Fprintf(&body, "Your gallery %q is ready for download.\r\n\r\n", title)
	if meta.CustomMessage != "" {
		fmt.Fprintf(&body, "%s\r\n\r\n", meta.CustomMessage)
	}
	if n.config.BaseURL != "" {
		fmt.Fprintf(&body, "Link: %s/%s\r\n", strings.TrimRight(n.config.BaseURL, "/"), meta.Slug)
	}
	fmt.Fprintf(&body, "Files: %d\r\nAvailable until: %s\r\n",
		len(meta.Files), meta.ExpiresAt.Format("2 January 2006"))

	return n.send(ctx, recipient, subject, body.String())
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))

	fromHeader := fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", n.config.FromName), n.config.From)
	msgID := fmt.Sprintf("<%s@%s>", uuid.New(), n.config.Host)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Message-ID: %s\r\n", msgID)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n%s", body)

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, n.config.From, []string{to}, []byte(msg.String()))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

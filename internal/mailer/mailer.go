package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"

	"ln-ticketing/internal/config"
	"ln-ticketing/internal/logger"
	"ln-ticketing/internal/pricing"
	"ln-ticketing/internal/tickets/qr"
)

// Mailer sends ticket and newsletter emails over SMTP. Delivery failures are
// the caller's problem to surface: a settled order never rolls back because
// of a mail error.
type Mailer struct {
	Config config.EmailConfig
	Logger *logger.Logger
}

func New(cfg config.EmailConfig, log *logger.Logger) *Mailer {
	return &Mailer{Config: cfg, Logger: log}
}

// SendTicketEmail emails one ticket with its QR code attached.
func (m *Mailer) SendTicketEmail(ctx context.Context, email, ticketID, ticketType string, serial int) error {
	png, err := qr.Generate(ticketID)
	if err != nil {
		return fmt.Errorf("failed to generate ticket QR: %w", err)
	}

	subject := fmt.Sprintf("Tu entrada para %s", m.Config.EventTitle)
	body := ticketBody(m.Config.EventTitle, m.Config.EventDate, ticketType, serial)

	msg, err := buildMessage(m.Config.From, email, subject, body, png, ticketID+".png")
	if err != nil {
		return err
	}
	return m.send(email, msg)
}

// SendNewsletterWelcome sends the welcome mail after a newsletter opt-in.
func (m *Mailer) SendNewsletterWelcome(ctx context.Context, email string) error {
	subject := fmt.Sprintf("Bienvenido a %s", m.Config.EventTitle)
	body := fmt.Sprintf("<html><body><h1>%s</h1><p>Ya estás en la lista. Te avisamos de las novedades del evento.</p></body></html>", m.Config.EventTitle)

	msg, err := buildMessage(m.Config.From, email, subject, body, nil, "")
	if err != nil {
		return err
	}
	return m.send(email, msg)
}

func ticketBody(title, date, ticketType string, serial int) string {
	block := pricing.BlockIndex(serial - 1)
	blockLabel := fmt.Sprintf("#%d", block)
	if block == 0 {
		blockLabel = "Genesis"
	}

	serialHTML := ""
	if serial > 0 {
		serialHTML = fmt.Sprintf("<h2>Sos el #%d. Minado en Bloque %s</h2>", serial, blockLabel)
	}

	return fmt.Sprintf(`<html><body>
<h1>%s</h1>
<p>%s</p>
<h2>Entrada: %s</h2>
%s
<p>Presentá el código QR adjunto en la puerta.</p>
</body></html>`, title, date, ticketType, serialHTML)
}

func buildMessage(from, to, subject, htmlBody string, attachment []byte, filename string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%q\r\n\r\n",
		from, to, subject, writer.Boundary())
	buf.WriteString(headers)

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	if attachment != nil {
		imgPart, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"image/png"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", filename)},
		})
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(attachment)
		if _, err := imgPart.Write([]byte(encoded)); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Mailer) send(to string, msg []byte) error {
	addr := m.Config.SMTPHost + ":" + m.Config.SMTPPort
	auth := smtp.PlainAuth("", m.Config.SMTPUsername, m.Config.SMTPPassword, m.Config.SMTPHost)

	if err := smtp.SendMail(addr, auth, m.Config.From, []string{to}, msg); err != nil {
		m.Logger.Error("EMAIL", fmt.Sprintf("send to %s failed: %v", to, err))
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.Logger.Info("EMAIL", fmt.Sprintf("sent to %s", to))
	return nil
}

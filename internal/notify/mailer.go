package notify

import (
	"fmt"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/openmerce/openmerce/config"
	"github.com/openmerce/openmerce/internal/events"
	"github.com/openmerce/openmerce/pkg/common"
)

// Mailer sends order notifications over SMTP. It subscribes to the
// order topics and never propagates a failure back into the order
// workflow; a send error is logged and dropped.
type Mailer struct {
	cfg config.SmtpConfig
}

func NewMailer(cfg config.SmtpConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether SMTP is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != "" && m.cfg.NotifyTo != ""
}

// Subscribe registers async handlers on the order topics. No-op when
// SMTP is not configured.
func (m *Mailer) Subscribe(bus EventBus.Bus) error {
	if !m.Enabled() {
		zap.L().Info("mail notifications disabled, smtp not configured")
		return nil
	}
	if err := bus.SubscribeAsync(events.TopicOrderCreated, m.onOrderCreated, false); err != nil {
		return err
	}
	return bus.SubscribeAsync(events.TopicOrderCancelled, m.onOrderCancelled, false)
}

func (m *Mailer) onOrderCreated(evt events.OrderEvent) {
	subject := fmt.Sprintf("New order %s", evt.OrderNumber)
	body := fmt.Sprintf("Order %s placed by customer %d, total %s.",
		evt.OrderNumber, evt.CustomerID, common.FormatAmount(evt.Total))
	m.send(subject, body)
}

func (m *Mailer) onOrderCancelled(evt events.OrderEvent) {
	subject := fmt.Sprintf("Order %s cancelled", evt.OrderNumber)
	body := fmt.Sprintf("Order %s for customer %d was cancelled.",
		evt.OrderNumber, evt.CustomerID)
	m.send(subject, body)
}

func (m *Mailer) send(subject, body string) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.NotifyTo)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		zap.L().Warn("failed to send notification mail",
			zap.String("subject", subject), zap.Error(err))
	}
}

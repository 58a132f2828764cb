package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	headerFromTemplateConstant        = "From: %s"
	headerToTemplateConstant          = "To: %s"
	headerSubjectTemplateConstant     = "Subject: %s"
	headerDateTemplateConstant        = "Date: %s"
	headerMIMEConstant                = "MIME-Version: 1.0"
	headerContentTypeConstant         = "Content-Type: text/plain; charset=UTF-8"
	mailLineSeparatorConstant         = "\r\n"
	recipientSeparatorConstant        = ", "
	senderMissingMessageConstant      = "smtp sender address must be provided"
	hostMissingMessageConstant        = "smtp host must be provided"
	recipientsMissingMessageConstant  = "notification has no recipients"
	loggerMissingMessageConstant      = "mailer logger not configured"
	sendErrorTemplateConstant         = "unable to send notification %q via %s: %w"
	loggedNotificationMessageConstant = "Notification"
	sentNotificationMessageConstant   = "Sent notification"
	logFieldSubjectConstant           = "subject"
	logFieldRecipientsConstant        = "recipients"
	logFieldBodyConstant              = "body"
	logFieldServerConstant            = "server"
	defaultSMTPPortConstant           = 25
)

var (
	// ErrSenderRequired indicates the SMTP mailer has no sender address.
	ErrSenderRequired = errors.New(senderMissingMessageConstant)
	// ErrHostRequired indicates the SMTP mailer has no host.
	ErrHostRequired = errors.New(hostMissingMessageConstant)
	// ErrNoRecipients indicates a message without recipients.
	ErrNoRecipients = errors.New(recipientsMissingMessageConstant)
	// ErrLoggerNotConfigured indicates a nil logger was supplied.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
)

// Mailer delivers a composed message.
type Mailer interface {
	Send(executionContext context.Context, message Message) error
}

// SMTPSettings configures SMTPMailer.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(address string, authentication smtp.Auth, from string, recipients []string, message []byte) error

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	settings SMTPSettings
	logger   *zap.Logger
	sendMail SendMailFunc
	clock    func() time.Time
}

// NewSMTPMailer validates settings and constructs an SMTPMailer. A nil sendMail uses smtp.SendMail.
func NewSMTPMailer(settings SMTPSettings, logger *zap.Logger, sendMail SendMailFunc) (*SMTPMailer, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	settings.Host = strings.TrimSpace(settings.Host)
	settings.From = strings.TrimSpace(settings.From)
	if len(settings.Host) == 0 {
		return nil, ErrHostRequired
	}
	if len(settings.From) == 0 {
		return nil, ErrSenderRequired
	}
	if settings.Port <= 0 {
		settings.Port = defaultSMTPPortConstant
	}
	if sendMail == nil {
		sendMail = smtp.SendMail
	}
	return &SMTPMailer{settings: settings, logger: logger, sendMail: sendMail, clock: time.Now}, nil
}

// Send composes RFC 5322 headers and the body, then dispatches to every recipient. Authentication
// is used only when a username is configured.
func (mailer *SMTPMailer) Send(executionContext context.Context, message Message) error {
	if len(message.Recipients) == 0 {
		return ErrNoRecipients
	}
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}

	address := net.JoinHostPort(mailer.settings.Host, strconv.Itoa(mailer.settings.Port))
	var authentication smtp.Auth
	if len(mailer.settings.Username) > 0 {
		authentication = smtp.PlainAuth("", mailer.settings.Username, mailer.settings.Password, mailer.settings.Host)
	}

	if sendError := mailer.sendMail(address, authentication, mailer.settings.From, message.Recipients, mailer.render(message)); sendError != nil {
		return fmt.Errorf(sendErrorTemplateConstant, message.Subject, address, sendError)
	}
	mailer.logger.Info(sentNotificationMessageConstant, zap.String(logFieldSubjectConstant, message.Subject), zap.String(logFieldServerConstant, address))
	return nil
}

func (mailer *SMTPMailer) render(message Message) []byte {
	lines := []string{
		fmt.Sprintf(headerFromTemplateConstant, mailer.settings.From),
		fmt.Sprintf(headerToTemplateConstant, strings.Join(message.Recipients, recipientSeparatorConstant)),
		fmt.Sprintf(headerSubjectTemplateConstant, message.Subject),
		fmt.Sprintf(headerDateTemplateConstant, mailer.clock().Format(time.RFC1123Z)),
		headerMIMEConstant,
		headerContentTypeConstant,
		"",
	}
	lines = append(lines, message.Body...)
	return []byte(strings.Join(lines, mailLineSeparatorConstant) + mailLineSeparatorConstant)
}

// LogMailer writes notifications to the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger *zap.Logger) (*LogMailer, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &LogMailer{logger: logger}, nil
}

// Send logs the message at info level.
func (mailer *LogMailer) Send(_ context.Context, message Message) error {
	mailer.logger.Info(
		loggedNotificationMessageConstant,
		zap.String(logFieldSubjectConstant, message.Subject),
		zap.Strings(logFieldRecipientsConstant, message.Recipients),
		zap.Strings(logFieldBodyConstant, message.Body),
	)
	return nil
}

// NewMailer returns an SMTPMailer when a host is configured and a LogMailer otherwise.
func NewMailer(settings SMTPSettings, logger *zap.Logger) (Mailer, error) {
	if len(strings.TrimSpace(settings.Host)) == 0 {
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(settings, logger, nil)
}

// Package notify sends the rejection alert and the run report by mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"testflow_backend/apperr"
	"testflow_backend/config"
	"testflow_backend/store"

	"go.uber.org/zap"
)

var errNoRecipient = errors.New("no recipient configured")

// Recipient resolves a destination address either from a fixed value or from
// the settings row.
type Recipient struct {
	Strategy string
	Fixed    string
	// pick selects the relevant address from the settings row.
	pick func(s settingsView) string
}

type settingsView struct {
	report    string
	rejection string
}

func RejectionRecipient(strategy, fixed string) Recipient {
	return Recipient{Strategy: strategy, Fixed: fixed, pick: func(s settingsView) string { return s.rejection }}
}

func ReportRecipient(strategy, fixed string) Recipient {
	return Recipient{Strategy: strategy, Fixed: fixed, pick: func(s settingsView) string { return s.report }}
}

type Alert struct {
	TesterName       string
	InstructionTitle string
	TestNumber       int
	Remark           string
}

type Dispatcher struct {
	transport Transport
	settings  store.Settings
	rejection Recipient
	report    Recipient
	logger    *zap.Logger
}

func NewDispatcher(t Transport, settings store.Settings, rejection, report Recipient, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		transport: t,
		settings:  settings,
		rejection: rejection,
		report:    report,
		logger:    logger.Named("notify"),
	}
}

// resolve fails with a TransportError when no address is configured. A
// settings lookup failure keeps its own kind.
func (d *Dispatcher) resolve(ctx context.Context, op string, r Recipient) (string, error) {
	addr := r.Fixed
	if r.Strategy == config.RecipientSettings {
		s, err := d.settings.GetSettings(ctx)
		if err != nil {
			return "", err
		}
		addr = r.pick(settingsView{report: s.ReportEmail, rejection: s.RejectionEmail})
	}
	if strings.TrimSpace(addr) == "" {
		return "", apperr.Transport(op, errNoRecipient)
	}
	return addr, nil
}

// RejectionAlert mails the rejection of a single instruction.
func (d *Dispatcher) RejectionAlert(ctx context.Context, a Alert) error {
	const op = "notify.RejectionAlert"
	to, err := d.resolve(ctx, op, d.rejection)
	if err != nil {
		return err
	}

	body := fmt.Sprintf(`<p>A test was rejected for %s with the following remark:</p>
<blockquote>%s</blockquote>
<p>The test title is: %s and the test number is: %d</p>`,
		html.EscapeString(a.TesterName),
		html.EscapeString(a.Remark),
		html.EscapeString(a.InstructionTitle),
		a.TestNumber)

	msg := Message{
		To:      to,
		Subject: "Test Rejected for " + a.TesterName,
		Body:    body,
		HTML:    true,
	}
	if err := d.transport.Send(ctx, msg); err != nil {
		d.logger.Warn("rejection alert failed", zap.String("to", to), zap.Error(err))
		return apperr.Transport(op, err)
	}
	d.logger.Info("rejection alert sent", zap.String("to", to), zap.Int("test_number", a.TestNumber))
	return nil
}

// RunReport mails the compiled report of a finished run.
func (d *Dispatcher) RunReport(ctx context.Context, testerName string, att Attachment) error {
	const op = "notify.RunReport"
	to, err := d.resolve(ctx, op, d.report)
	if err != nil {
		return err
	}

	msg := Message{
		To:          to,
		Subject:     "Test Report: " + testerName,
		Body:        fmt.Sprintf("Please find attached the test report for %s.", testerName),
		Attachments: []Attachment{att},
	}
	if err := d.transport.Send(ctx, msg); err != nil {
		d.logger.Warn("report dispatch failed", zap.String("to", to), zap.Error(err))
		return apperr.Transport(op, err)
	}
	d.logger.Info("report sent", zap.String("to", to), zap.String("file", att.Filename))
	return nil
}

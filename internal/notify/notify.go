// Package notify escalates failed runs to the operator.
package notify

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// NotificationType represents the severity of a notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title        string
	Message      string
	Type         NotificationType
	ScheduleID   string
	ScheduleName string
	LogFile      string
	At           time.Time
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Len reports how many notifiers are attached
func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}

// Send delivers to every notifier and combines their failures
func (m *MultiNotifier) Send(ctx context.Context, n Notification) error {
	var errs error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// RunFailed builds the escalation for a run that ended in terminal failure
func RunFailed(scheduleID, scheduleName, summary, logFile string, at time.Time) Notification {
	msg := "Schedule " + scheduleID + " failed: " + summary
	if logFile != "" {
		msg += "\nLog: " + logFile
	}
	return Notification{
		Title:        scheduleName + " failed",
		Message:      msg,
		Type:         NotifyError,
		ScheduleID:   scheduleID,
		ScheduleName: scheduleName,
		LogFile:      logFile,
		At:           at,
	}
}

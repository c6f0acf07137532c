package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/susahesumudu/mit-erp/core"
)

// Dispatcher fans a notification out to a pub/sub group and by email.
// Each side effect runs independently; failures are logged and never returned.
type Dispatcher struct {
	pub            Publisher
	mailSvc        core.EmailService
	logger         core.Logger
	publishTimeout time.Duration
	sync           bool
}

func NewDispatcher(pub Publisher, mailSvc core.EmailService, logger core.Logger, publishTimeout time.Duration) *Dispatcher {
	return &Dispatcher{pub: pub, mailSvc: mailSvc, logger: logger, publishTimeout: publishTimeout}
}

// NewSyncDispatcher returns a Dispatcher that publishes before Dispatch returns.
func NewSyncDispatcher(pub Publisher, mailSvc core.EmailService, logger core.Logger, publishTimeout time.Duration) *Dispatcher {
	return &Dispatcher{pub: pub, mailSvc: mailSvc, logger: logger, publishTimeout: publishTimeout, sync: true}
}

func NewDispatcherMock(pub Publisher, mailSvc core.EmailService, logger core.Logger) *Dispatcher {
	return NewSyncDispatcher(pub, mailSvc, logger, time.Second)
}

func (d *Dispatcher) Dispatch(ctx context.Context, group string, ev Event, msg *core.EmailMessage) {
	if d.pub != nil {
		if d.sync {
			d.publish(ctx, group, ev)
		} else {
			// detach from the request so the publish outlives it
			go d.publish(context.Background(), group, ev)
		}
	}
	if d.mailSvc != nil && msg != nil {
		d.mailSvc.SendMessages(msg)
	}
}

func (d *Dispatcher) publish(ctx context.Context, group string, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(fmt.Sprintf("notify.Dispatch(%s): publish panicked: %v", group, r))
		}
	}()

	if d.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.publishTimeout)
		defer cancel()
	}
	if err := d.pub.Publish(ctx, group, ev); err != nil {
		d.logger.Error(fmt.Sprintf("notify.Dispatch(%s): %v", group, err), err)
	}
}

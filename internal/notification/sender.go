// Package notification pushes a message for every newly confirmed
// observation through shoutrrr.
package notification

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the notification package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("notification")
	})
	return serviceLogger
}

// Sender delivers one message.
type Sender interface {
	Send(title, message string) error
}

// ShoutrrrSender sends to every configured shoutrrr service URL.
type ShoutrrrSender struct {
	sender *router.ServiceRouter
}

// NewShoutrrrSender validates urls and builds the router.
func NewShoutrrrSender(urls []string, timeout time.Duration) (*ShoutrrrSender, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// the raw error may echo tokens embedded in the URL
		return nil, errors.Newf("invalid notification URL: %s", errors.ScrubMessage(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrSender{sender: sender}, nil
}

// Send implements Sender. The first failing service is reported.
func (s *ShoutrrrSender) Send(title, message string) error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	for _, err := range s.sender.Send(message, &params) {
		if err != nil {
			return errors.Newf("notification delivery failed: %s", errors.ScrubMessage(err.Error())).
				Component("notification").
				Category(errors.CategoryIntegration).
				Build()
		}
	}
	return nil
}

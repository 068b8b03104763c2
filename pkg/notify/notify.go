// Package notify delivers user-visible warnings, such as a response being
// served from the cache after a network failure.
package notify

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

type Notification struct {
	Level   Level
	Message string
	// URL of the request the notification is about, if any.
	URL string
}

// Notifier receives notifications. Notify must not block.
type Notifier interface {
	Notify(Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(Notification)

func (f Func) Notify(n Notification) {
	f(n)
}

// Discard drops all notifications.
var Discard Notifier = Func(func(Notification) {})

// LogNotifier writes notifications to a logger. Identical notifications
// within the suppression window are logged only once.
type LogNotifier struct {
	log       zerolog.Logger
	seen      *ttlcache.Cache[string, struct{}]
	closeOnce sync.Once
}

// NewLogNotifier creates a notifier logging to logger, or to the console if nil.
// A zero window disables duplicate suppression.
func NewLogNotifier(logger *zerolog.Logger, window time.Duration) *LogNotifier {
	var l zerolog.Logger
	if logger == nil {
		l = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		l = *logger
	}
	n := &LogNotifier{
		log: l.With().Str("component", "notify").Logger(),
	}
	if window > 0 {
		n.seen = ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](window),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
		go n.seen.Start()
	}
	return n
}

func (n *LogNotifier) Notify(notification Notification) {
	if n.seen != nil {
		key := notification.Level.String() + "|" + notification.URL + "|" + notification.Message
		if _, found := n.seen.GetOrSet(key, struct{}{}); found {
			return
		}
	}

	var event *zerolog.Event
	switch notification.Level {
	case Warning:
		event = n.log.Warn()
	case Error:
		event = n.log.Error()
	default:
		event = n.log.Info()
	}
	if notification.URL != "" {
		event = event.Str("url", notification.URL)
	}
	event.Msg(notification.Message)
}

// Close stops the expiry of suppressed notifications.
func (n *LogNotifier) Close() {
	if n.seen != nil {
		n.closeOnce.Do(n.seen.Stop)
	}
}

package input

import (
	"context"
	"log/slog"
	"strings"

	natspkg "github.com/nats-io/nats.go"
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/pkg/item"
)

// NATSInput subscribes to NATS subjects. Subject tokens become topic levels:
// "tele.kitchen.SENSOR" arrives as "tele/kitchen/SENSOR".
type NATSInput struct {
	baseInput
	conf       config.NATSInputConf
	dispatcher Dispatcher
	nc         *natspkg.Conn
	subs       []*natspkg.Subscription
}

func NewNATSInput(subject *Subject, dispatcher Dispatcher, conf config.NATSInputConf) *NATSInput {
	return &NATSInput{
		baseInput:  baseInput{subject: subject},
		conf:       conf,
		dispatcher: dispatcher,
	}
}

func (ni *NATSInput) Name() string {
	return "nats"
}

func (ni *NATSInput) IsReady() bool {
	return ni.baseInput.IsReady() && ni.conf.URL != ""
}

// Connected reports whether the NATS connection is currently up.
func (ni *NATSInput) Connected() bool {
	return ni.nc != nil && ni.nc.Status() == natspkg.CONNECTED
}

func (ni *NATSInput) Start(ctx context.Context) error {
	nc, err := natspkg.Connect(ni.conf.URL,
		natspkg.Name("mqwd"),
		natspkg.MaxReconnects(-1),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			logger.Warn("Lost connection to NATS", slog.String("url", ni.conf.URL), slog.Any("error", err))
			msg := "lost connection to " + ni.conf.URL
			if err != nil {
				msg += ": " + err.Error()
			}
			ni.dispatcher.Failover(ctx, "nats", msg)
		}),
		natspkg.ReconnectHandler(func(c *natspkg.Conn) {
			logger.Info("Reconnected to NATS", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return err
	}
	ni.nc = nc

	handler := func(msg *natspkg.Msg) {
		ni.subject.Publish(ctx, ni.Name(), item.Event{Topic: SubjectToTopic(msg.Subject), Payload: msg.Data})
	}
	for _, s := range ni.conf.Subjects {
		var sub *natspkg.Subscription
		if ni.conf.Queue != "" {
			sub, err = nc.QueueSubscribe(s, ni.conf.Queue, handler)
		} else {
			sub, err = nc.Subscribe(s, handler)
		}
		if err != nil {
			nc.Close()
			return err
		}
		ni.subs = append(ni.subs, sub)
		logger.Info("Subscribed to NATS subject", slog.String("subject", s))
	}
	return nil
}

func (ni *NATSInput) Stop() error {
	if ni.nc == nil {
		return nil
	}
	for _, s := range ni.subs {
		_ = s.Unsubscribe()
	}
	return ni.nc.Drain()
}

// SubjectToTopic maps NATS subject tokens to topic levels, including the
// wildcards.
func SubjectToTopic(subject string) string {
	t := strings.ReplaceAll(subject, ".", "/")
	if strings.HasSuffix(t, "/>") {
		t = strings.TrimSuffix(t, ">") + "#"
	}
	return strings.ReplaceAll(t, "*", "+")
}

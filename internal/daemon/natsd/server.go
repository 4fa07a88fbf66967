package natsd

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Sensor is the daemon-side implementation answered by Server.
type Sensor interface {
	PositionX() int
	PositionY() int
	Size() int
	ShouldBoostBrightness() bool
	DimAmount(brightness int) int

	OnPress()
	OnRelease()
	OnShowFODView()
	OnHideFODView()
}

// Server exposes a Sensor on NATS and publishes its heartbeat and finger
// events.
type Server struct {
	nc     *nats.Conn
	prefix string
	sensor Sensor

	subs []*nats.Subscription
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Serve subscribes every daemon method and starts the heartbeat.
func Serve(nc *nats.Conn, prefix string, sensor Sensor) (*Server, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Server{
		nc:     nc,
		prefix: prefix,
		sensor: sensor,
		stop:   make(chan struct{}),
	}

	queries := []string{
		methodHello, methodPositionX, methodPositionY, methodSize,
		methodShouldBoostBrightness, methodDimAmount,
	}
	for _, method := range queries {
		method := method
		sub, err := nc.Subscribe(Subject(prefix, method), func(m *nats.Msg) {
			if err := m.Respond(encodeReply(s.answer(method, m.Data))); err != nil {
				pfxlog.ContextLogger("natsd").WithError(err).Warnf("unable to answer %s", method)
			}
		})
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "subscribe %s", method)
		}
		s.subs = append(s.subs, sub)
	}

	commands := []string{methodPress, methodRelease, methodShow, methodHide}
	for _, method := range commands {
		method := method
		sub, err := nc.Subscribe(Subject(prefix, method), func(*nats.Msg) {
			s.command(method)
		})
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "subscribe %s", method)
		}
		s.subs = append(s.subs, sub)
	}

	s.wg.Add(1)
	go s.heartbeat()

	return s, nil
}

// answer computes the reply for a query method.
func (s *Server) answer(method string, data []byte) reply {
	switch method {
	case methodHello:
		return reply{Value: 1}
	case methodPositionX:
		return reply{Value: s.sensor.PositionX()}
	case methodPositionY:
		return reply{Value: s.sensor.PositionY()}
	case methodSize:
		return reply{Value: s.sensor.Size()}
	case methodShouldBoostBrightness:
		return reply{Flag: s.sensor.ShouldBoostBrightness()}
	case methodDimAmount:
		var req request
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return reply{Error: "malformed request: " + err.Error()}
			}
		}
		return reply{Value: s.sensor.DimAmount(req.Brightness)}
	default:
		return reply{Error: "unknown method " + method}
	}
}

func (s *Server) command(method string) {
	switch method {
	case methodPress:
		s.sensor.OnPress()
	case methodRelease:
		s.sensor.OnRelease()
	case methodShow:
		s.sensor.OnShowFODView()
	case methodHide:
		s.sensor.OnHideFODView()
	}
}

func (s *Server) heartbeat() {
	defer s.wg.Done()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.nc.Publish(Subject(s.prefix, methodHeartbeat), nil); err != nil {
				pfxlog.ContextLogger("natsd").WithError(err).Debug("heartbeat not sent")
			}
		}
	}
}

// FingerDown notifies clients that a finger touched the sensor.
func (s *Server) FingerDown() error {
	return s.nc.Publish(Subject(s.prefix, methodCallback), []byte(eventFingerDown))
}

// FingerUp notifies clients that the finger left the sensor.
func (s *Server) FingerUp() error {
	return s.nc.Publish(Subject(s.prefix, methodCallback), []byte(eventFingerUp))
}

// Close unsubscribes everything and stops the heartbeat.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.stop)
		for _, sub := range s.subs {
			_ = sub.Unsubscribe()
		}
	})
	s.wg.Wait()
}

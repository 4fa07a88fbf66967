// Package natsd carries the sensor daemon protocol over NATS: request/reply for
// queries, plain publishes for one-way commands, a callback subject for finger
// events and a heartbeat subject for liveness.
package natsd

import (
	"encoding/json"
	"time"

	"github.com/phinze/fodcircle/internal/daemon"
	"github.com/pkg/errors"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "fod.inscreen"

// HeartbeatInterval is how often the daemon announces it is alive. A client
// declares the daemon dead after heartbeatMisses intervals without one.
const (
	HeartbeatInterval = time.Second
	heartbeatMisses   = 3
)

const (
	methodHello                 = "hello"
	methodPositionX             = "getPositionX"
	methodPositionY             = "getPositionY"
	methodSize                  = "getSize"
	methodShouldBoostBrightness = "shouldBoostBrightness"
	methodDimAmount             = "getDimAmount"
	methodPress                 = "onPress"
	methodRelease               = "onRelease"
	methodShow                  = "onShowFODView"
	methodHide                  = "onHideFODView"
	methodCallback              = "callback"
	methodHeartbeat             = "heartbeat"
)

const (
	eventFingerDown = "fingerDown"
	eventFingerUp   = "fingerUp"
)

// Subject joins a prefix and a method name.
func Subject(prefix, method string) string {
	return prefix + "." + method
}

type request struct {
	Brightness int `json:"brightness,omitempty"`
}

type reply struct {
	Value int    `json:"value"`
	Flag  bool   `json:"flag,omitempty"`
	Error string `json:"error,omitempty"`
}

func encodeReply(r reply) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// reply has only scalar fields
		panic(err)
	}
	return data
}

func decodeReply(data []byte) (reply, error) {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return reply{}, errors.Wrap(err, "decode daemon reply")
	}
	if r.Error != "" {
		return reply{}, errors.Wrap(daemon.ErrRemoteUnavailable, r.Error)
	}
	return r, nil
}

// dispatchCallback decodes a callback payload and invokes cb.
func dispatchCallback(cb daemon.Callback, data []byte) bool {
	switch string(data) {
	case eventFingerDown:
		cb.FingerDown()
	case eventFingerUp:
		cb.FingerUp()
	default:
		return false
	}
	return true
}

package sink

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
	"github.com/srg/polarhr/internal/hrm"
)

// Default heart rate range mapped onto the 0..1 avatar parameters.
const (
	DefaultMinHR = 32
	DefaultMaxHR = 192
)

type oscSender interface {
	Send(packet osc.Packet) error
}

// OSCRelay mirrors heart rate to VRChat-style avatar parameters.
type OSCRelay struct {
	client oscSender
	MinHR  int
	MaxHR  int
}

// NewOSCRelay creates a relay sending UDP to target ("host:port").
func NewOSCRelay(target string) (*OSCRelay, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("invalid OSC target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid OSC port %q", portStr)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return &OSCRelay{client: osc.NewClient(host, port), MinHR: DefaultMinHR, MaxHR: DefaultMaxHR}, nil
}

func avatarParam[V any](name string, value V) *osc.Message {
	msg := osc.NewMessage("/avatar/parameters/" + name)
	msg.Append(value)
	return msg
}

// Percent maps hr into [0, 1] over MinHR..MaxHR.
func (r *OSCRelay) Percent(hr int) float64 {
	if r.MaxHR == r.MinHR || hr <= r.MinHR {
		return 0
	} else if hr >= r.MaxHR {
		return 1
	}
	return float64(hr-r.MinHR) / float64(r.MaxHR-r.MinHR)
}

// Emit sends the heart rate parameters. Samples without bpm only mark a beat.
func (r *OSCRelay) Emit(s hrm.Sample) error {
	if !s.HasBPM {
		return r.client.Send(avatarParam("isHRBeat", true))
	}
	percent := r.Percent(s.BPM)
	return errors.Join(
		r.client.Send(avatarParam("HR", int32(s.BPM))),
		r.client.Send(avatarParam("HRPercent", float32(percent))),
		r.client.Send(avatarParam("FullHRPercent", float32(2*percent-1))),
		r.client.Send(avatarParam("isHRBeat", true)),
	)
}

// SetConnected reports the strap connection state.
func (r *OSCRelay) SetConnected(connected bool) error {
	return errors.Join(
		r.client.Send(avatarParam("isHRConnected", connected)),
		r.client.Send(avatarParam("isHRActive", connected)),
	)
}

// Close zeroes every parameter.
func (r *OSCRelay) Close() error {
	return errors.Join(
		r.client.Send(avatarParam("isHRConnected", false)),
		r.client.Send(avatarParam("isHRActive", false)),
		r.client.Send(avatarParam("isHRBeat", false)),
		r.client.Send(avatarParam[int32]("HR", 0)),
		r.client.Send(avatarParam[float32]("HRPercent", 0)),
		r.client.Send(avatarParam[float32]("FullHRPercent", 0)),
	)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"time"

	"github.com/Thermoquad/nbplink/pkg/at"
)

// Phase of the two-phase send
type Phase int

const (
	PhaseAnnounce Phase = iota
	PhasePayload
)

func (p Phase) String() string {
	if p == PhaseAnnounce {
		return "announce"
	}
	return "payload"
}

// SendResult describes one two-phase send
type SendResult struct {
	Outcome  at.Outcome
	Phase    Phase // the phase that resolved the send
	Response []byte
	Err      error // link failure, if any
}

// OK reports whether both phases succeeded
func (r SendResult) OK() bool {
	return r.Outcome == at.Success && r.Phase == PhasePayload
}

// Sender transmits payloads to a connected client: announce the length and
// wait for the prompt, then stream the payload and wait for confirmation.
type Sender struct {
	tr              *at.Transport
	linkID          int
	announceTimeout time.Duration
	sendTimeout     time.Duration
}

// NewSender creates a sender for the multiplexed link linkID
func NewSender(tr *at.Transport, linkID int, announceTimeout, sendTimeout time.Duration) *Sender {
	return &Sender{
		tr:              tr,
		linkID:          linkID,
		announceTimeout: announceTimeout,
		sendTimeout:     sendTimeout,
	}
}

// Send runs both phases, stopping after a failed announce
func (s *Sender) Send(payload []byte) SendResult {
	announce := at.Exchange{
		Command: at.Line(at.AnnounceCommand(s.linkID, len(payload))),
		Expect:  at.TokenPrompt,
		Timeout: s.announceTimeout,
	}
	if r := s.run(PhaseAnnounce, announce); r.Outcome != at.Success {
		return r
	}

	return s.run(PhasePayload, at.Exchange{
		Command: string(payload),
		Expect:  at.TokenSendOK,
		Timeout: s.sendTimeout,
	})
}

func (s *Sender) run(phase Phase, ex at.Exchange) SendResult {
	call, err := s.tr.Start(ex)
	if err != nil {
		return SendResult{Outcome: at.ProtocolError, Phase: phase, Err: err}
	}
	outcome, err := call.Wait()
	return SendResult{Outcome: outcome, Phase: phase, Response: call.Response(), Err: err}
}

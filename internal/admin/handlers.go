package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/schema"
	"github.com/danmuck/smppctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
)

type PendingInfo struct {
	Sequence uint32 `json:"sequence"`
	Command  string `json:"command"`
	Age      string `json:"age"`
}

type ExitInfo struct {
	Reason string    `json:"reason"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

type SessionStatus struct {
	ID             string        `json:"id"`
	State          string        `json:"state"`
	Type           string        `json:"type,omitempty"`
	Version        string        `json:"version"`
	OptionalParams bool          `json:"optional_params"`
	Pending        []PendingInfo `json:"pending"`
	Exit           *ExitInfo     `json:"exit,omitempty"`
}

func (s *Server) Status() SessionStatus {
	st := SessionStatus{
		ID:             s.sess.ID(),
		State:          s.sess.State().String(),
		Version:        s.sess.Version().String(),
		OptionalParams: s.sess.OptionalParams(),
		Pending:        []PendingInfo{},
	}
	if typ := s.sess.Type(); typ != 0 {
		st.Type = typ.String()
	}
	now := time.Now()
	for _, p := range s.sess.Pending() {
		st.Pending = append(st.Pending, PendingInfo{
			Sequence: p.Sequence,
			Command:  p.Command.String(),
			Age:      now.Sub(p.SentAt).Truncate(time.Millisecond).String(),
		})
	}
	if ev, ok := s.sess.ExitEvent(); ok {
		info := &ExitInfo{Reason: ev.Reason.String(), Time: ev.Time}
		if ev.Err != nil {
			info.Error = ev.Err.Error()
		}
		st.Exit = info
	}
	return st
}

type SubmitRequest struct {
	ServiceType        string `json:"service_type"`
	Source             string `json:"source"`
	SourceTON          uint8  `json:"source_ton"`
	SourceNPI          uint8  `json:"source_npi"`
	Dest               string `json:"dest" binding:"required"`
	DestTON            uint8  `json:"dest_ton"`
	DestNPI            uint8  `json:"dest_npi"`
	Text               string `json:"text"`
	DataCoding         uint8  `json:"data_coding"`
	RegisteredDelivery uint8  `json:"registered_delivery"`
}

type SubmitResponse struct {
	Sequence  uint32 `json:"sequence"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

// NewSubmit builds a submit_sm from req, encoding Text in the alphabet
// named by DataCoding.
func NewSubmit(f *pdu.Factory, req SubmitRequest) (*pdu.Packet, error) {
	alpha, err := pdu.AlphabetFor(req.DataCoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	msg, err := alpha.Encode(req.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	return f.Make(pdu.SubmitSM, &pdu.ShortMessage{
		ServiceType:        req.ServiceType,
		Source:             pdu.Address{TON: req.SourceTON, NPI: req.SourceNPI, Addr: req.Source},
		Dest:               pdu.Address{TON: req.DestTON, NPI: req.DestNPI, Addr: req.Dest},
		RegisteredDelivery: req.RegisteredDelivery,
		DataCoding:         req.DataCoding,
		Message:            msg,
	}), nil
}

// Submit sends one submit_sm and waits for its response.
func (s *Server) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if state := s.sess.State(); state != session.Bound {
		return SubmitResponse{}, fmt.Errorf("%w: state %s", ErrNotBound, state)
	}
	p, err := NewSubmit(s.sess.Factory(), req)
	if err != nil {
		return SubmitResponse{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.sess.Request(ctx, p)
	if err != nil {
		return SubmitResponse{Sequence: p.Sequence}, err
	}
	return SubmitResult(resp), nil
}

// SubmitResult summarizes a submit_sm_resp.
func SubmitResult(resp *pdu.Packet) SubmitResponse {
	out := SubmitResponse{Sequence: resp.Sequence, Status: resp.Status.String()}
	if body, ok := resp.Body.(*pdu.MessageIDResp); ok {
		out.MessageID = body.MessageID
	}
	return out
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := s.Submit(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrNotBound):
			status = http.StatusConflict
		case errors.Is(err, ErrBadEncoding), errors.As(err, new(schema.ValidationError)):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case errors.Is(err, session.ErrReceiverStopped):
			status = http.StatusBadGateway
		}
		logs.Warnf("admin: submit to %s failed: %v", req.Dest, err)
		c.JSON(status, gin.H{"error": err.Error(), "sequence": out.Sequence})
		return
	}
	status := http.StatusOK
	if out.Status != pdu.StatusOK.String() {
		status = http.StatusBadGateway
	}
	c.JSON(status, out)
}

package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/wippyai/capture-bridge/bridge"
	"github.com/wippyai/capture-bridge/enroll"
	"github.com/wippyai/capture-bridge/errors"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State          string `json:"state"`
	Path           string `json:"path,omitempty"`
	BufferCapacity int    `json:"bufferCapacity"`
}

// LoadRequest is the body of POST /api/module.
type LoadRequest struct {
	Path string `json:"path"`
}

// CaptureRequest is the body of POST /api/device/capture.
type CaptureRequest struct {
	Quality *int `json:"quality"`
}

// EnrollRequest is the body of POST /api/enrollments.
type EnrollRequest struct {
	Quality *int   `json:"quality"`
	Subject string `json:"subject"`
}

// MatchRequest is the body of POST /api/match. Without a template the
// server captures one.
type MatchRequest struct {
	Quality  *int   `json:"quality"`
	Template string `json:"templateEncoded"`
}

// parseBody decodes an optional JSON body.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return errors.Wrap(errors.PhaseCall, errors.KindInvalidInput, err, "decode request body")
	}
	return nil
}

func (s *Server) status() StatusResponse {
	t := s.bridge.Table()
	return StatusResponse{
		State:          t.State().String(),
		Path:           t.Path(),
		BufferCapacity: s.bridge.BufferCapacity(),
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handleLoad(c *fiber.Ctx) error {
	var req LoadRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}
	if req.Path == "" {
		req.Path = s.driverPath
	}

	var err error
	if werr := s.run(c, func(ctx context.Context) { err = s.bridge.LoadModule(ctx, req.Path) }); werr != nil {
		return s.fail(c, werr)
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"loaded": true, "path": s.bridge.Table().Path()})
}

func (s *Server) handleUnload(c *fiber.Ctx) error {
	if err := s.run(c, func(context.Context) { s.bridge.UnloadModule() }); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"loaded": false})
}

func (s *Server) handleInit(c *fiber.Ctx) error {
	return s.lifecycle(c, "initialized", s.bridge.Initialize)
}

func (s *Server) handleUninit(c *fiber.Ctx) error {
	return s.lifecycle(c, "uninitialized", s.bridge.Uninitialize)
}

func (s *Server) lifecycle(c *fiber.Ctx, event string, call func(context.Context) (int32, error)) error {
	var (
		code int32
		err  error
	)
	if werr := s.run(c, func(ctx context.Context) { code, err = call(ctx) }); werr != nil {
		return s.fail(c, werr)
	}

	ev := Event{Type: event, Code: &code}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(ev)

	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"code": code})
}

// capture runs one capture on the worker and publishes its outcome.
func (s *Server) capture(c *fiber.Ctx, quality *int) (bridge.CaptureResult, error) {
	q := s.quality
	if quality != nil {
		q = *quality
	}

	var (
		res bridge.CaptureResult
		err error
	)
	if werr := s.run(c, func(ctx context.Context) { res, err = s.bridge.CaptureTemplate(ctx, q) }); werr != nil {
		return bridge.CaptureResult{}, werr
	}

	ev := Event{Type: "captured"}
	if !res.Success {
		code := res.ErrorCode
		ev.Type, ev.Code = "capture_failed", &code
	}
	s.publish(ev)
	return res, err
}

// handleCapture returns the capture result itself. Only a missing module or
// a malformed request is an HTTP error; driver failures are results.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	var req CaptureRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}

	res, err := s.capture(c, req.Quality)
	if err != nil {
		switch kind, _ := errors.KindOf(err); kind {
		case errors.KindNotBound:
			return c.Status(fiber.StatusConflict).JSON(res)
		case errors.KindDriverError, errors.KindDriverFault, errors.KindCaptureEmpty, errors.KindOutOfBounds:
			// the result carries the failure
		default:
			return s.fail(c, err)
		}
	}
	return c.JSON(res)
}

func (s *Server) handleEnroll(c *fiber.Ctx) error {
	var req EnrollRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}
	if req.Subject == "" {
		return s.fail(c, errors.InvalidInput(errors.PhaseStore, "subject is required"))
	}

	res, err := s.capture(c, req.Quality)
	if err != nil {
		return s.fail(c, err)
	}

	rec, err := s.store.Enroll(c.UserContext(), req.Subject, res)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (s *Server) handleListEnrollments(c *fiber.Ctx) error {
	records, err := s.store.List(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(records)
}

func (s *Server) handleDeleteEnrollment(c *fiber.Ctx) error {
	if err := s.store.Delete(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMatch(c *fiber.Ctx) error {
	var req MatchRequest
	if err := parseBody(c, &req); err != nil {
		return s.fail(c, err)
	}

	var scanned []byte
	if req.Template != "" {
		raw, err := bridge.DecodeTemplate(req.Template)
		if err != nil {
			return s.fail(c, err)
		}
		scanned = raw
	} else {
		res, err := s.capture(c, req.Quality)
		if err != nil {
			return s.fail(c, err)
		}
		if scanned, err = res.Decode(); err != nil {
			return s.fail(c, err)
		}
	}

	records, err := s.store.List(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	m, _ := enroll.Find(scanned, records, s.threshold)
	return c.JSON(m)
}

func (s *Server) handleEventsWS(conn *websocket.Conn) {
	st := s.status()
	hello, _ := json.Marshal(Event{Time: time.Now().UTC(), Type: "state", State: st.State, Path: st.Path})

	cl := newClient(s.events, conn)
	cl.send <- hello
	if !s.events.add(cl) {
		_ = conn.Close()
		return
	}
	cl.serve()
}

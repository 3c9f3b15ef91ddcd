package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/teranos/valstream/engine"
	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/record"
)

// maxRequestBody bounds run requests; queries are small.
const maxRequestBody = 1 << 20

// HandleRun executes one run and returns its output document.
// The request is either JSON or a form with query, target_shape, target_var,
// endpoint, limit and repeated shape_var=var:shape fields.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorMessage(err))
		return
	}

	res, err := s.engine.Run(r.Context(), req)
	if err != nil {
		s.logger.Warnw("Run failed", logger.FieldError, err)
		writeError(w, statusFor(err), errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeRequest(r *http.Request) (engine.Request, error) {
	var req engine.Request
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.NewInvalidRequestError("invalid request body: %v", err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, errors.NewInvalidRequestError("invalid form: %v", err)
	}
	req.Query = r.Form.Get("query")
	req.TargetShape = r.Form.Get("target_shape")
	req.TargetVar = r.Form.Get("target_var")
	req.Endpoint = r.Form.Get("endpoint")
	if v := r.Form.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errors.NewInvalidRequestError("limit must be an integer, got %q", v)
		}
		req.Limit = &n
	}
	for _, pair := range r.Form["shape_var"] {
		name, id, ok := strings.Cut(pair, ":")
		if !ok || name == "" || id == "" {
			return req, errors.NewInvalidRequestError("shape_var must look like var:shape, got %q", pair)
		}
		if req.ShapeVars == nil {
			req.ShapeVars = make(map[string]string)
		}
		req.ShapeVars[name] = id
	}
	return req, nil
}

// Websocket frames sent by HandleRunWebSocket
const (
	frameRow   = "row"
	frameDone  = "done"
	frameError = "error"
)

type frame struct {
	Type     string      `json:"type"`
	Row      *record.Row `json:"row,omitempty"`
	RunID    string      `json:"run_id,omitempty"`
	Document interface{} `json:"document,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// HandleRunWebSocket reads one JSON run request from the socket, streams
// every row as it is reconstructed and finishes with a done or error frame.
func (s *Server) HandleRunWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("Failed to upgrade WebSocket", logger.FieldError, err)
		return
	}
	defer conn.Close()

	var req engine.Request
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(frame{Type: frameError, Error: "invalid request: " + err.Error()})
		return
	}
	req.OnRow = func(row record.Row) error {
		return conn.WriteJSON(frame{Type: frameRow, Row: &row})
	}

	res, err := s.engine.Run(r.Context(), req)
	if err != nil {
		s.logger.Warnw("Streaming run failed", logger.FieldError, err)
		conn.WriteJSON(frame{Type: frameError, Error: errorMessage(err)})
		return
	}
	conn.WriteJSON(frame{Type: frameDone, RunID: res.RunID, Document: res.Document})
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

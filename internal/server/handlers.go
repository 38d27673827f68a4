package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/transform"
	"github.com/vyrodovalexey/recordflow/internal/util"
)

// ErrorResponse is the body of every failed API call. Field and Condition
// are set for validation failures, Rule for strict rule failures.
type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Condition string `json:"condition,omitempty"`
	Rule      string `json:"rule,omitempty"`
}

// BatchItem is the outcome of one record of a batch request.
type BatchItem struct {
	Index  int              `json:"index"`
	Status int              `json:"status"`
	Record transform.Record `json:"record,omitempty"`
	*ErrorResponse
}

// BatchResponse is the body of a batch request. Items are in input order.
type BatchResponse struct {
	Results   []BatchItem `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// handleRecord processes a single JSON object.
func (s *Server) handleRecord(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	out, err := s.processor.ProcessJSON(c.Request.Context(), body)
	if err != nil {
		status, resp := errorResponse(err)
		s.logFailure(c, status, err)
		_ = c.Error(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, out)
}

// handleBatch processes a JSON array of records. The call succeeds as a
// whole when the array parses; each item carries its own status.
func (s *Server) handleBatch(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var inputs []interface{}
	if err := json.Unmarshal(body, &inputs); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "batch body must be a JSON array: " + err.Error()})
		return
	}
	s.metrics.ObserveBatch(len(inputs))

	results := s.processor.ProcessBatch(c.Request.Context(), inputs)

	resp := BatchResponse{Results: make([]BatchItem, len(results))}
	for i, r := range results {
		item := BatchItem{Index: r.Index, Status: http.StatusOK, Record: r.Record}
		if r.Error != nil {
			status, er := errorResponse(r.Error)
			item.Status = status
			item.Record = nil
			item.ErrorResponse = &er
			resp.Failed++
		} else {
			resp.Succeeded++
		}
		resp.Results[i] = item
	}

	c.JSON(http.StatusOK, resp)
}

// handleSnapshot serves the transformer's metrics snapshot.
func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.processor.Metrics())
}

// readBody reads the request body, answering 413 or 400 itself on failure.
func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
		return nil, false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
	return nil, false
}

func (s *Server) logFailure(c *gin.Context, status int, err error) {
	if status < http.StatusInternalServerError {
		return
	}
	s.logger.WithContext(c.Request.Context()).Error("record processing failed",
		observability.String("path", c.Request.URL.Path),
		observability.Error(err),
	)
}

// errorResponse maps a processing error to its status code and body.
func errorResponse(err error) (int, ErrorResponse) {
	var validation *util.RuleValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:     err.Error(),
			Field:     validation.Field,
			Condition: validation.Condition,
		}
	}

	var execution *util.RuleExecutionError
	if errors.As(err, &execution) {
		rule := execution.RuleName
		if rule == "" {
			rule = execution.RuleType
		}
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Field: execution.Field,
			Rule:  rule,
		}
	}

	if errors.Is(err, util.ErrInvalidInput) {
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
}

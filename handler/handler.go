// Package handler exposes the job-board agent over HTTP. One router serves
// both API Gateway (Lambda) and the local Fiber server.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"jobboard-agent/internal/domain"
	"jobboard-agent/internal/intent"
	"jobboard-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerContentType   = "Content-Type"
	maxBodyBytes        = 64 << 10

	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type IntentUseCase interface {
	Extract(ctx context.Context, in usecase.IntentInput) (usecase.IntentOutput, error)
}

type SearchUseCase interface {
	Search(ctx context.Context, in domain.Intent) (domain.SearchResponse, error)
}

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Reset(ctx context.Context, conversationID string) (usecase.ResetOutput, error)
}

// Request is the transport-neutral form of an incoming call.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    string
}

type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type Handler struct {
	intents IntentUseCase
	search  SearchUseCase
	chat    ChatUseCase
	routes  map[string]route
	logger  *slog.Logger
}

type route struct {
	method string
	serve  func(ctx context.Context, body string) (int, any, error)
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(intents IntentUseCase, search SearchUseCase, chat ChatUseCase, opts ...Option) (*Handler, error) {
	if intents == nil {
		return nil, errors.New("handler: intent use case must not be nil")
	}
	if search == nil {
		return nil, errors.New("handler: search use case must not be nil")
	}
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{intents: intents, search: search, chat: chat, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.routes = map[string]route{
		"/intent": {method: http.MethodPost, serve: h.serveIntent},
		"/search": {method: http.MethodPost, serve: h.serveSearch},
		"/run":    {method: http.MethodPost, serve: h.serveRun},
		"/reset":  {method: http.MethodPost, serve: h.serveReset},
		"/health": {method: http.MethodGet, serve: h.serveHealth},
		"/prompt": {method: http.MethodGet, serve: h.servePrompt},
	}
	return h, nil
}

// Serve routes one request and always produces a JSON response.
func (h *Handler) Serve(ctx context.Context, req Request) Response {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	path := strings.TrimRight(req.Path, "/")
	if path == "" {
		path = "/"
	}
	rt, ok := h.routes[path]
	if !ok {
		return jsonResponse(http.StatusNotFound, correlationID, errorResponse{Error: errorNotFound, Reason: path}, nil)
	}
	method := strings.ToUpper(req.Method)
	if method != rt.method {
		return jsonResponse(http.StatusMethodNotAllowed, correlationID,
			errorResponse{Error: errorMethodNotAllowed, Reason: method},
			map[string]string{"Allow": rt.method})
	}
	if len(req.Body) > maxBodyBytes {
		return jsonResponse(http.StatusBadRequest, correlationID,
			errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "body_too_large"}, nil)
	}

	status, payload, err := rt.serve(ctx, req.Body)
	if err != nil {
		status, body := mapError(err)
		logAttrs := []any{"path", path, "status", status, "code", body.Error, "reason", body.Reason, "err", err}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", logAttrs...)
		} else {
			logger.Warn("request rejected", logAttrs...)
		}
		return jsonResponse(status, correlationID, body, nil)
	}
	logger.Info("request served", "path", path, "status", status)
	return jsonResponse(status, correlationID, payload, nil)
}

// Handle adapts an API Gateway proxy event to Serve.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := map[string]string{}
	for k, vs := range event.MultiValueHeaders {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	for k, v := range event.Headers {
		headers[k] = v
	}

	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			correlationID := headerValue(headers, headerCorrelationID)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			resp := jsonResponse(http.StatusBadRequest, correlationID,
				errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body_encoding"}, nil)
			return events.APIGatewayProxyResponse{StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body}, nil
		}
		body = string(decoded)
	}

	resp := h.Serve(ctx, Request{Method: event.HTTPMethod, Path: event.Path, Headers: headers, Body: body})
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}, nil
}

// Register mounts the router on a Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Use(h.serveFiber)
}

func (h *Handler) serveFiber(c fiber.Ctx) error {
	resp := h.Serve(c.Context(), Request{
		Method:  c.Method(),
		Path:    c.Path(),
		Headers: map[string]string{headerCorrelationID: c.Get(headerCorrelationID)},
		Body:    string(c.Body()),
	})
	for k, v := range resp.Headers {
		c.Set(k, v)
	}
	return c.Status(resp.StatusCode).SendString(resp.Body)
}

type intentRequest struct {
	UserResponses string `json:"user_responses"`
}

type intentResponse struct {
	IntentJSON    domain.Intent  `json:"intent_json"`
	Raw           string         `json:"raw"`
	MissingFields []domain.Field `json:"missing_fields"`
}

func (h *Handler) serveIntent(ctx context.Context, body string) (int, any, error) {
	var req intentRequest
	if err := decodeStrict(body, &req); err != nil {
		return 0, nil, err
	}
	out, err := h.intents.Extract(ctx, usecase.IntentInput{UserResponses: req.UserResponses})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, intentResponse{
		IntentJSON:    out.Intent,
		Raw:           out.Raw,
		MissingFields: append([]domain.Field{}, out.MissingFields...),
	}, nil
}

type searchRequest struct {
	IntentJSON json.RawMessage `json:"intent_json"`
}

func (h *Handler) serveSearch(ctx context.Context, body string) (int, any, error) {
	var req searchRequest
	if err := decodeStrict(body, &req); err != nil {
		return 0, nil, err
	}
	in, err := decodeIntentJSON(req.IntentJSON)
	if err != nil {
		return 0, nil, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_intent_json", Err: err}
	}
	out, err := h.search.Search(ctx, in)
	if err != nil {
		return 0, nil, err
	}
	if out.Jobs == nil {
		out.Jobs = []domain.JobResult{}
	}
	return http.StatusOK, out, nil
}

// decodeIntentJSON accepts the intent as an object or as a JSON-encoded
// string holding that object.
func decodeIntentJSON(raw json.RawMessage) (domain.Intent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return domain.Intent{}, errors.New("intent_json is required")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.Intent{}, err
		}
		raw = json.RawMessage(strings.TrimSpace(s))
	}
	var in domain.Intent
	if err := json.Unmarshal(raw, &in); err != nil {
		return domain.Intent{}, err
	}
	return in, nil
}

type runRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type runResponse struct {
	Response       string                 `json:"response"`
	CandidateInfo  domain.Intent          `json:"candidate_info"`
	MissingFields  []domain.Field         `json:"missing_fields"`
	ConversationID string                 `json:"conversation_id"`
	State          domain.State           `json:"state"`
	PendingField   domain.Field           `json:"pending_field,omitempty"`
	Results        *domain.SearchResponse `json:"results,omitempty"`
}

func (h *Handler) serveRun(ctx context.Context, body string) (int, any, error) {
	var req runRequest
	if err := decodeStrict(body, &req); err != nil {
		return 0, nil, err
	}
	out, err := h.chat.Chat(ctx, usecase.ChatInput{Message: req.Message, ConversationID: req.ConversationID})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, runResponse{
		Response:       out.Response,
		CandidateInfo:  out.CandidateInfo,
		MissingFields:  append([]domain.Field{}, out.MissingFields...),
		ConversationID: out.ConversationID,
		State:          out.State,
		PendingField:   out.PendingField,
		Results:        out.Results,
	}, nil
}

type resetRequest struct {
	ConversationID string `json:"conversation_id"`
}

type resetResponse struct {
	Message string `json:"message"`
}

func (h *Handler) serveReset(ctx context.Context, body string) (int, any, error) {
	var req resetRequest
	if err := decodeStrict(body, &req); err != nil {
		return 0, nil, err
	}
	out, err := h.chat.Reset(ctx, req.ConversationID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, resetResponse{Message: out.Message}, nil
}

type healthResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) serveHealth(context.Context, string) (int, any, error) {
	return http.StatusOK, healthResponse{OK: true}, nil
}

type promptResponse struct {
	Questions []string `json:"questions"`
	Template  string   `json:"template"`
}

func (h *Handler) servePrompt(context.Context, string) (int, any, error) {
	return http.StatusOK, promptResponse{Questions: usecase.Questions(), Template: intent.PromptTemplate()}, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func decodeStrict(body string, out any) error {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: errors.New("trailing data after JSON body")}
	}
	return nil
}

func mapError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Reason: "unexpected_error"}
	}
	body := errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, body
	case usecase.ErrorNoSourcesConfigured:
		return http.StatusServiceUnavailable, body
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, body
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}

func jsonResponse(status int, correlationID string, payload any, extra map[string]string) Response {
	headers := map[string]string{
		headerContentType:   "application/json",
		headerCorrelationID: correlationID,
	}
	for k, v := range extra {
		headers[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(fmt.Sprintf(`{"error":%q,"reason":"encode_error"}`, usecase.ErrorInternal))
	}
	return Response{StatusCode: status, Headers: headers, Body: string(b)}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Package handler runs one order operation per invocation: it opens a
// statement session, drives the operation, closes the session and shapes the
// outcome into a status code and JSON body.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/orders"
	"redshift-orders/internal/runner"
	"redshift-orders/internal/waiter"
)

// Operation names used in logs.
const (
	OpRead      = "read_orders"
	OpProvision = "provision_orders"
)

// SessionFactory opens the statement client for one invocation. The handler
// closes it when the invocation ends.
type SessionFactory func(ctx context.Context) (domain.StatementClient, error)

// Options configure a Handler.
type Options struct {
	Policy           waiter.Policy
	TransportRetries int
	Logger           *slog.Logger
	// WaiterOptions are passed to every waiter, e.g. a fake clock in tests.
	WaiterOptions []waiter.Option
}

// Handler serves order operations.
type Handler struct {
	orders     *orders.Service
	open       SessionFactory
	policy     waiter.Policy
	retries    int
	logger     *slog.Logger
	waiterOpts []waiter.Option
}

// New creates a Handler. The poll policy is validated here so a bad
// configuration fails at startup.
func New(svc *orders.Service, open SessionFactory, opts Options) (*Handler, error) {
	if svc == nil {
		return nil, domain.ErrConfiguration("orders", "service is required")
	}
	if open == nil {
		return nil, domain.ErrConfiguration("session", "factory is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		orders:     svc,
		open:       open,
		policy:     opts.Policy,
		retries:    opts.TransportRetries,
		logger:     logger,
		waiterOpts: opts.WaiterOptions,
	}, nil
}

// Response is a transport-neutral reply.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// ReadBody is the success body element of a read. SelectResult keys follow
// domain.ObjectKeys so repeated column names keep every value.
type ReadBody struct {
	SelectResult []map[string]any `json:"selectResult"`
	Columns      []domain.Column  `json:"columns"`
}

// ProvisionBody is the success body element of a provision.
type ProvisionBody struct {
	Tables []domain.TableDescriptor `json:"tables"`
	Steps  []domain.StepResult      `json:"steps"`
}

// ErrorBody is the body of every failed invocation.
type ErrorBody struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	Step        string `json:"step,omitempty"`
	StatementID string `json:"statement_id,omitempty"`
}

// session is everything one invocation needs.
type session struct {
	client domain.StatementClient
	runner *runner.Runner
}

// Read selects orders and returns them as one body element.
func (h *Handler) Read(ctx context.Context, req orders.ReadRequest) Response {
	return h.invoke(ctx, OpRead, func(ctx context.Context, s *session) (any, error) {
		res, err := h.orders.Read(ctx, s.runner, req)
		if err != nil {
			return nil, err
		}
		return []ReadBody{{SelectResult: domain.RowObjects(res.Columns, res.Rows), Columns: res.Columns}}, nil
	})
}

// Provision creates the order table, inserts an order and grants the role.
func (h *Handler) Provision(ctx context.Context, req orders.ProvisionRequest) Response {
	return h.invoke(ctx, OpProvision, func(ctx context.Context, s *session) (any, error) {
		res, err := h.orders.Provision(ctx, s.runner, s.client, req)
		if err != nil {
			return nil, err
		}
		return []ProvisionBody{{Tables: res.Tables, Steps: res.Steps}}, nil
	})
}

func (h *Handler) invoke(ctx context.Context, op string, fn func(context.Context, *session) (any, error)) Response {
	logger := h.logger.With("invocation_id", invocationID(ctx), "operation", op)
	logger.Info("invocation started")

	body, err := h.withSession(ctx, logger, fn)
	if err != nil {
		status, eb := errorResponse(err)
		if status >= http.StatusInternalServerError {
			logger.Error("invocation failed", "status", status, "code", eb.Code, "error", err)
		} else {
			logger.Warn("invocation rejected", "status", status, "code", eb.Code, "error", err)
		}
		return jsonResponse(status, eb)
	}

	logger.Info("invocation finished")
	return jsonResponse(http.StatusOK, body)
}

func (h *Handler) withSession(ctx context.Context, logger *slog.Logger, fn func(context.Context, *session) (any, error)) (any, error) {
	client, err := h.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close session", "error", cerr)
		}
	}()

	opts := append([]waiter.Option{waiter.WithLogger(logger)}, h.waiterOpts...)
	w, err := waiter.New(client, h.policy, opts...)
	if err != nil {
		return nil, err
	}
	return fn(ctx, &session{
		client: client,
		runner: runner.New(client, w, h.retries, logger),
	})
}

// invocationID prefers the id assigned upstream: the HTTP request id, then the
// Lambda request id.
func invocationID(ctx context.Context) string {
	if id := domain.InvocationIDFromContext(ctx); id != "" {
		return id
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}

func jsonResponse(status int, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode response","code":"INTERNAL_ERROR"}`)
	}
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// errorResponse maps the error taxonomy to a status code and body.
func errorResponse(err error) (int, ErrorBody) {
	eb := ErrorBody{Error: err.Error()}

	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		eb.Step = stepErr.Name
		eb.StatementID = stepErr.StatementID
	}

	var (
		validation *domain.ValidationError
		failed     *domain.StatementFailedError
		timeout    *domain.PollTimeoutError
		cancelled  *domain.CancelledError
		transport  *domain.TransportError
		configErr  *domain.ConfigurationError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status, eb.Code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.As(err, &failed):
		status, eb.Code = http.StatusBadRequest, "STATEMENT_FAILED"
	case errors.As(err, &timeout):
		status, eb.Code = http.StatusGatewayTimeout, "POLL_TIMEOUT"
	case errors.As(err, &cancelled):
		status, eb.Code = http.StatusServiceUnavailable, "CANCELLED"
	case errors.As(err, &transport):
		if transport.Throttled {
			status, eb.Code = http.StatusServiceUnavailable, "THROTTLED"
		} else {
			status, eb.Code = http.StatusBadGateway, "TRANSPORT_ERROR"
		}
	case errors.As(err, &configErr):
		eb.Code = "CONFIGURATION_ERROR"
	default:
		eb.Code = "INTERNAL_ERROR"
	}
	return status, eb
}

// Classify returns the body a failed invocation reports for err.
func Classify(err error) ErrorBody {
	_, eb := errorResponse(err)
	return eb
}

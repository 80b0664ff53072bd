package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/orders"
)

// provisionPayload is the optional JSON request body of a provision call.
type provisionPayload struct {
	Name string `json:"name"`
}

// ParseLimit reads the optional "limit" query parameter.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > orders.MaxLimit {
		return 0, domain.ErrValidation("limit must be an integer between 1 and %d", orders.MaxLimit)
	}
	return n, nil
}

// ParseProvisionBody decodes an optional {"name": ...} body.
func ParseProvisionBody(body []byte) (orders.ProvisionRequest, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return orders.ProvisionRequest{}, nil
	}
	var p provisionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return orders.ProvisionRequest{}, domain.ErrValidation("invalid JSON body: %v", err)
	}
	return orders.ProvisionRequest{OrderName: p.Name}, nil
}

// ReadLambda is the API Gateway entry point of the read function.
func (h *Handler) ReadLambda(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	limit, err := ParseLimit(req.QueryStringParameters["limit"])
	if err != nil {
		return toProxy(ErrorResponse(err)), nil
	}
	return toProxy(h.Read(ctx, orders.ReadRequest{Limit: limit})), nil
}

// ProvisionLambda is the API Gateway entry point of the write function.
func (h *Handler) ProvisionLambda(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return toProxy(ErrorResponse(domain.ErrValidation("invalid base64 body"))), nil
		}
		body = decoded
	}
	preq, err := ParseProvisionBody(body)
	if err != nil {
		return toProxy(ErrorResponse(err)), nil
	}
	return toProxy(h.Provision(ctx, preq)), nil
}

// ErrorResponse renders an error raised outside an invocation, such as a
// malformed request.
func ErrorResponse(err error) Response {
	status, eb := errorResponse(err)
	return jsonResponse(status, eb)
}

func toProxy(r Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: r.StatusCode,
		Headers:    r.Headers,
		Body:       r.Body,
	}
}

// FailedLambda answers every request with err. A function whose configuration
// cannot be loaded serves it so callers see CONFIGURATION_ERROR instead of an
// init crash loop.
func FailedLambda(err error) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := toProxy(ErrorResponse(err))
	return func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return resp, nil
	}
}

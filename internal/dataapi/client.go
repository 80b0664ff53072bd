// Package dataapi implements domain.StatementClient on the Amazon Redshift
// Data API for serverless workgroups.
package dataapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata/types"
	"github.com/google/uuid"

	"redshift-orders/internal/domain"
)

// Compile-time check: Client implements domain.StatementClient.
var _ domain.StatementClient = (*Client)(nil)

// API is the subset of the Redshift Data API used by Client. It is satisfied
// by *redshiftdata.Client and by fakes in tests.
type API interface {
	ExecuteStatement(ctx context.Context, params *redshiftdata.ExecuteStatementInput, optFns ...func(*redshiftdata.Options)) (*redshiftdata.ExecuteStatementOutput, error)
	DescribeStatement(ctx context.Context, params *redshiftdata.DescribeStatementInput, optFns ...func(*redshiftdata.Options)) (*redshiftdata.DescribeStatementOutput, error)
	GetStatementResult(ctx context.Context, params *redshiftdata.GetStatementResultInput, optFns ...func(*redshiftdata.Options)) (*redshiftdata.GetStatementResultOutput, error)
	ListTables(ctx context.Context, params *redshiftdata.ListTablesInput, optFns ...func(*redshiftdata.Options)) (*redshiftdata.ListTablesOutput, error)
}

// Options tune how a Client is built from the AWS default configuration.
type Options struct {
	Region string
	// Static credentials for local runs. When KeyID is empty the default
	// credential chain (Lambda role, env, shared config) is used.
	KeyID        string
	Secret       string
	SessionToken string
	// EndpointURL overrides the service endpoint.
	EndpointURL string
	// StatementName tags every submitted statement for auditing.
	StatementName string
}

// Client submits, describes and fetches statements for one target.
type Client struct {
	api           API
	target        domain.Target
	statementName string
	newToken      func() string
}

// New creates a Client over api. The target is validated first, so a
// malformed configuration fails before any remote call.
func New(target domain.Target, api API, statementName string) (*Client, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if api == nil {
		return nil, domain.ErrConfiguration("api", "is required")
	}
	return &Client{
		api:           api,
		target:        target,
		statementName: statementName,
		newToken:      uuid.NewString,
	}, nil
}

// NewFromConfig loads the AWS configuration and creates a Client. The SDK's
// own retryer is disabled: retries belong to the poll policy, and submit must
// never be repeated behind the caller's back.
func NewFromConfig(ctx context.Context, target domain.Target, opts Options) (*Client, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.KeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, opts.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, domain.ErrConfiguration("aws", "load config: %v", err)
	}
	if cfg.Region == "" {
		return nil, domain.ErrConfiguration("region", "is required (set AWS_REGION)")
	}

	api := redshiftdata.NewFromConfig(cfg, func(o *redshiftdata.Options) {
		o.Retryer = aws.NopRetryer{}
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
	})
	return New(target, api, opts.StatementName)
}

// Target returns the target the client is bound to.
func (c *Client) Target() domain.Target { return c.target }

// Submit calls ExecuteStatement. Each call carries a fresh client token, so
// the API deduplicates only the SDK's own resends of the same request.
func (c *Client) Submit(ctx context.Context, sql string, params ...domain.Param) (string, error) {
	if strings.TrimSpace(sql) == "" {
		return "", domain.ErrValidation("sql is required")
	}

	in := &redshiftdata.ExecuteStatementInput{
		Database:      aws.String(c.target.Database),
		WorkgroupName: aws.String(c.target.Workgroup),
		Sql:           aws.String(sql),
		ClientToken:   aws.String(c.newToken()),
	}
	if c.target.SecretARN != "" {
		in.SecretArn = aws.String(c.target.SecretARN)
	}
	if c.statementName != "" {
		in.StatementName = aws.String(c.statementName)
	}
	for _, p := range params {
		in.Parameters = append(in.Parameters, types.SqlParameter{
			Name:  aws.String(p.Name),
			Value: aws.String(p.Value),
		})
	}

	out, err := c.api.ExecuteStatement(ctx, in)
	if err != nil {
		return "", transportError("ExecuteStatement", err)
	}
	id := aws.ToString(out.Id)
	if id == "" {
		return "", &domain.TransportError{Op: "ExecuteStatement", Err: fmt.Errorf("response carried no statement id")}
	}
	return id, nil
}

// Describe calls DescribeStatement.
func (c *Client) Describe(ctx context.Context, id string) (*domain.StatementDescription, error) {
	out, err := c.api.DescribeStatement(ctx, &redshiftdata.DescribeStatementInput{Id: aws.String(id)})
	if err != nil {
		return nil, transportError("DescribeStatement", err)
	}
	return &domain.StatementDescription{
		Status:       domain.StatementStatus(out.Status),
		HasResultSet: aws.ToBool(out.HasResultSet),
		Error:        aws.ToString(out.Error),
		ResultRows:   out.ResultRows,
		Duration:     time.Duration(out.Duration),
	}, nil
}

// FetchResult reads every page of GetStatementResult.
func (c *Client) FetchResult(ctx context.Context, id string) (*domain.ResultSet, error) {
	pages := redshiftdata.NewGetStatementResultPaginator(c.api, &redshiftdata.GetStatementResultInput{Id: aws.String(id)})

	rs := &domain.ResultSet{}
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, transportError("GetStatementResult", err)
		}
		if rs.Columns == nil {
			rs.Columns = columns(page.ColumnMetadata)
		}
		for _, record := range page.Records {
			rs.Rows = append(rs.Rows, row(record))
		}
	}
	return rs, nil
}

// ListTables pages through ListTables until maxResults tables are collected.
func (c *Client) ListTables(ctx context.Context, pattern string, maxResults int32) ([]domain.TableDescriptor, error) {
	if maxResults <= 0 {
		maxResults = 100
	}
	in := &redshiftdata.ListTablesInput{
		Database:      aws.String(c.target.Database),
		WorkgroupName: aws.String(c.target.Workgroup),
		MaxResults:    maxResults,
	}
	if pattern != "" {
		in.TablePattern = aws.String(pattern)
	}
	if c.target.SecretARN != "" {
		in.SecretArn = aws.String(c.target.SecretARN)
	}

	var tables []domain.TableDescriptor
	pages := redshiftdata.NewListTablesPaginator(c.api, in)
	for pages.HasMorePages() && int32(len(tables)) < maxResults {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, transportError("ListTables", err)
		}
		for _, t := range page.Tables {
			if int32(len(tables)) == maxResults {
				break
			}
			tables = append(tables, domain.TableDescriptor{
				Schema: aws.ToString(t.Schema),
				Name:   aws.ToString(t.Name),
				Type:   aws.ToString(t.Type),
			})
		}
	}
	return tables, nil
}

// Close is a no-op; the SDK client holds no per-invocation resources.
func (c *Client) Close() error { return nil }

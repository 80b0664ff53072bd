package dataapi

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redshift-orders/internal/domain"
)

type fakeAPI struct {
	executeFn  func(*redshiftdata.ExecuteStatementInput) (*redshiftdata.ExecuteStatementOutput, error)
	describeFn func(*redshiftdata.DescribeStatementInput) (*redshiftdata.DescribeStatementOutput, error)
	resultFn   func(*redshiftdata.GetStatementResultInput) (*redshiftdata.GetStatementResultOutput, error)
	listFn     func(*redshiftdata.ListTablesInput) (*redshiftdata.ListTablesOutput, error)
}

func (f *fakeAPI) ExecuteStatement(_ context.Context, in *redshiftdata.ExecuteStatementInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.ExecuteStatementOutput, error) {
	return f.executeFn(in)
}

func (f *fakeAPI) DescribeStatement(_ context.Context, in *redshiftdata.DescribeStatementInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.DescribeStatementOutput, error) {
	return f.describeFn(in)
}

func (f *fakeAPI) GetStatementResult(_ context.Context, in *redshiftdata.GetStatementResultInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.GetStatementResultOutput, error) {
	return f.resultFn(in)
}

func (f *fakeAPI) ListTables(_ context.Context, in *redshiftdata.ListTablesInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.ListTablesOutput, error) {
	return f.listFn(in)
}

var testTarget = domain.Target{
	Database:  "kj_database",
	Workgroup: "kj-workgroup",
	SecretARN: "arn:aws:secretsmanager:eu-west-1:123456789012:secret:redshift-abc",
}

func TestNew_ValidatesTargetFirst(t *testing.T) {
	t.Parallel()

	_, err := New(domain.Target{Workgroup: "kj-workgroup"}, &fakeAPI{}, "")

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "database", cfgErr.Field)
}

func TestSubmit_ShapesRequest(t *testing.T) {
	t.Parallel()

	var got *redshiftdata.ExecuteStatementInput
	api := &fakeAPI{executeFn: func(in *redshiftdata.ExecuteStatementInput) (*redshiftdata.ExecuteStatementOutput, error) {
		got = in
		return &redshiftdata.ExecuteStatementOutput{Id: aws.String("d9b6c0c9-0747-4bf4-b142-e8883122f766")}, nil
	}}
	c, err := New(testTarget, api, "orders")
	require.NoError(t, err)
	c.newToken = func() string { return "token-1" }

	id, err := c.Submit(context.Background(), "INSERT INTO public.kj_order(name) VALUES (:name)", domain.Param{Name: "name", Value: "order_1"})
	require.NoError(t, err)

	assert.Equal(t, "d9b6c0c9-0747-4bf4-b142-e8883122f766", id)
	require.NotNil(t, got)
	assert.Equal(t, "kj_database", aws.ToString(got.Database))
	assert.Equal(t, "kj-workgroup", aws.ToString(got.WorkgroupName))
	assert.Equal(t, testTarget.SecretARN, aws.ToString(got.SecretArn))
	assert.Equal(t, "token-1", aws.ToString(got.ClientToken))
	assert.Equal(t, "orders", aws.ToString(got.StatementName))
	require.Len(t, got.Parameters, 1)
	assert.Equal(t, "name", aws.ToString(got.Parameters[0].Name))
	assert.Equal(t, "order_1", aws.ToString(got.Parameters[0].Value))
}

func TestSubmit_OmitsSecretWhenUnset(t *testing.T) {
	t.Parallel()

	var got *redshiftdata.ExecuteStatementInput
	api := &fakeAPI{executeFn: func(in *redshiftdata.ExecuteStatementInput) (*redshiftdata.ExecuteStatementOutput, error) {
		got = in
		return &redshiftdata.ExecuteStatementOutput{Id: aws.String("id-1")}, nil
	}}
	target := testTarget
	target.SecretARN = ""
	c, err := New(target, api, "")
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Nil(t, got.SecretArn)
	assert.Nil(t, got.StatementName)
}

func TestSubmit_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty sql", func(t *testing.T) {
		t.Parallel()
		c, err := New(testTarget, &fakeAPI{}, "")
		require.NoError(t, err)

		_, err = c.Submit(context.Background(), "   ")
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("throttled", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{executeFn: func(*redshiftdata.ExecuteStatementInput) (*redshiftdata.ExecuteStatementOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}
		}}
		c, err := New(testTarget, api, "")
		require.NoError(t, err)

		_, err = c.Submit(context.Background(), "SELECT 1")
		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "ExecuteStatement", te.Op)
		assert.True(t, te.Throttled)
		assert.True(t, te.Retryable)
	})

	t.Run("validation is not retryable", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{executeFn: func(*redshiftdata.ExecuteStatementInput) (*redshiftdata.ExecuteStatementOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "workgroup not found"}
		}}
		c, err := New(testTarget, api, "")
		require.NoError(t, err)

		_, err = c.Submit(context.Background(), "SELECT 1")
		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.False(t, te.Retryable)
		assert.Contains(t, err.Error(), "workgroup not found")
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{executeFn: func(*redshiftdata.ExecuteStatementInput) (*redshiftdata.ExecuteStatementOutput, error) {
			return &redshiftdata.ExecuteStatementOutput{}, nil
		}}
		c, err := New(testTarget, api, "")
		require.NoError(t, err)

		_, err = c.Submit(context.Background(), "SELECT 1")
		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
	})
}

func TestDescribe_MapsSnapshot(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{describeFn: func(in *redshiftdata.DescribeStatementInput) (*redshiftdata.DescribeStatementOutput, error) {
		assert.Equal(t, "id-1", aws.ToString(in.Id))
		return &redshiftdata.DescribeStatementOutput{
			Id:           in.Id,
			Status:       types.StatusStringFailed,
			HasResultSet: aws.Bool(false),
			Error:        aws.String("ERROR: role \"role1\" already exists"),
			ResultRows:   -1,
			Duration:     1500000,
		}, nil
	}}
	c, err := New(testTarget, api, "")
	require.NoError(t, err)

	desc, err := c.Describe(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, desc.Status)
	assert.False(t, desc.HasResultSet)
	assert.Equal(t, "ERROR: role \"role1\" already exists", desc.Error)
	assert.Equal(t, int64(-1), desc.ResultRows)
	assert.Equal(t, "1.5ms", desc.Duration.String())
}

func TestDescribe_TransportError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{describeFn: func(*redshiftdata.DescribeStatementInput) (*redshiftdata.DescribeStatementOutput, error) {
		return nil, errors.New("dial tcp: i/o timeout")
	}}
	c, err := New(testTarget, api, "")
	require.NoError(t, err)

	_, err = c.Describe(context.Background(), "id-1")
	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "DescribeStatement", te.Op)
}

func TestFetchResult_ReadsAllPages(t *testing.T) {
	t.Parallel()

	pages := map[string]*redshiftdata.GetStatementResultOutput{
		"": {
			ColumnMetadata: []types.ColumnMetadata{
				{Name: aws.String("name"), TypeName: aws.String("varchar")},
				{Name: aws.String("created_at"), TypeName: aws.String("timestamp")},
			},
			Records: [][]types.Field{
				{&types.FieldMemberStringValue{Value: "order_1"}, &types.FieldMemberStringValue{Value: "2024-01-02 10:00:00"}},
				{&types.FieldMemberStringValue{Value: "order_2"}, &types.FieldMemberIsNull{Value: true}},
			},
			NextToken: aws.String("page-2"),
		},
		"page-2": {
			Records: [][]types.Field{
				{&types.FieldMemberStringValue{Value: "order_3"}, &types.FieldMemberStringValue{Value: "2024-01-03 10:00:00"}},
			},
		},
	}
	api := &fakeAPI{resultFn: func(in *redshiftdata.GetStatementResultInput) (*redshiftdata.GetStatementResultOutput, error) {
		return pages[aws.ToString(in.NextToken)], nil
	}}
	c, err := New(testTarget, api, "")
	require.NoError(t, err)

	rs, err := c.FetchResult(context.Background(), "id-1")
	require.NoError(t, err)

	assert.Equal(t, []domain.Column{{Name: "name", TypeName: "varchar"}, {Name: "created_at", TypeName: "timestamp"}}, rs.Columns)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, domain.Row{"order_2", nil}, rs.Rows[1])
	assert.Equal(t, "order_3", rs.Rows[2][0])
}

func TestFieldValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field types.Field
		want  any
	}{
		{name: "string", field: &types.FieldMemberStringValue{Value: "x"}, want: "x"},
		{name: "long", field: &types.FieldMemberLongValue{Value: 42}, want: int64(42)},
		{name: "double", field: &types.FieldMemberDoubleValue{Value: 1.5}, want: 1.5},
		{name: "bool", field: &types.FieldMemberBooleanValue{Value: true}, want: true},
		{name: "blob", field: &types.FieldMemberBlobValue{Value: []byte{1, 2}}, want: []byte{1, 2}},
		{name: "null", field: &types.FieldMemberIsNull{Value: true}, want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fieldValue(tt.field))
		})
	}
}

func TestListTables_BoundedByMaxResults(t *testing.T) {
	t.Parallel()

	var firstIn *redshiftdata.ListTablesInput
	api := &fakeAPI{listFn: func(in *redshiftdata.ListTablesInput) (*redshiftdata.ListTablesOutput, error) {
		if firstIn == nil {
			firstIn = in
		}
		if aws.ToString(in.NextToken) == "" {
			return &redshiftdata.ListTablesOutput{
				Tables: []types.TableMember{
					{Schema: aws.String("public"), Name: aws.String("kj_order"), Type: aws.String("TABLE")},
					{Schema: aws.String("public"), Name: aws.String("kj_customer"), Type: aws.String("TABLE")},
				},
				NextToken: aws.String("next"),
			}, nil
		}
		return &redshiftdata.ListTablesOutput{
			Tables: []types.TableMember{
				{Schema: aws.String("public"), Name: aws.String("kj_item"), Type: aws.String("TABLE")},
			},
		}, nil
	}}
	c, err := New(testTarget, api, "")
	require.NoError(t, err)

	tables, err := c.ListTables(context.Background(), "kj%", 2)
	require.NoError(t, err)

	assert.Equal(t, []domain.TableDescriptor{
		{Schema: "public", Name: "kj_order", Type: "TABLE"},
		{Schema: "public", Name: "kj_customer", Type: "TABLE"},
	}, tables)
	require.NotNil(t, firstIn)
	assert.Equal(t, "kj%", aws.ToString(firstIn.TablePattern))
	assert.Equal(t, int32(2), firstIn.MaxResults)
	assert.Equal(t, "kj-workgroup", aws.ToString(firstIn.WorkgroupName))
}

package dataapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/testutil"
)

func TestThrottled_DisabledReturnsSameClient(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockStatementClient{}
	assert.Same(t, mock, Throttled(mock, 0, 10))
}

func TestThrottled_Delegates(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockStatementClient{
		DescribeFn: testutil.Script(testutil.Finished(true)),
		FetchFn: func(context.Context, string) (*domain.ResultSet, error) {
			return testutil.Rows(2), nil
		},
	}
	c := Throttled(mock, 1000, 5)

	id, err := c.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)
	desc, err := c.Describe(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, desc.Status)
	rs, err := c.FetchResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	_, err = c.ListTables(context.Background(), "kj%", 10)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.Equal(t, 1, mock.DescribeCalls(id))
	assert.Equal(t, 1, mock.ListTablesCalls())
	assert.True(t, mock.Closed())
}

func TestThrottled_CancelledContext(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockStatementClient{}
	c := Throttled(mock, 1, 1)

	// Drain the single token so the next call has to wait.
	_, err := c.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Describe(ctx, "stmt-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mock.DescribeCalls("stmt-1"))
}

func TestThrottled_DeadlineTooShort(t *testing.T) {
	t.Parallel()

	mock := &testutil.MockStatementClient{}
	c := Throttled(mock, 0.1, 1)

	_, err := c.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.Describe(ctx, "stmt-1")

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Throttled)
	assert.Equal(t, "DescribeStatement", te.Op)
}

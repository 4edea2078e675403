package store

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterAndOpen(t *testing.T) {
	errSentinel := errors.New("opened")
	Register("test-backend", func(_ context.Context, dsn string) (Store, error) {
		assert.Equal(t, "dsn", dsn)
		return nil, errSentinel
	})

	_, err := Open(context.Background(), "test-backend", "dsn")
	assert.ErrorIs(t, err, errSentinel)
	assert.Contains(t, List(), "test-backend")
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "nonexistent", "")
	assert.Error(t, err)
}

func TestListSorted(t *testing.T) {
	Register("zz-backend", func(context.Context, string) (Store, error) { return nil, nil })
	Register("aa-backend", func(context.Context, string) (Store, error) { return nil, nil })

	assert.True(t, sort.StringsAreSorted(List()), "got %v", List())
}

func TestDuplicateKeyErrorMessage(t *testing.T) {
	err := DuplicateKeyError{Table: "quarantine_rejected_sales_header", Key: "TXN001"}
	assert.EqualError(t, err, "duplicate key TXN001 in quarantine_rejected_sales_header")
}

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}

	assert.Equal(t, "23505", ErrorCode(pgErr))
	assert.Equal(t, "23505", ErrorCode(fmt.Errorf("insert task: %w", pgErr)))

	// Non-Postgres errors must not panic and yield no code.
	assert.Equal(t, "", ErrorCode(errors.New("connection refused")))
	assert.Equal(t, "", ErrorCode(nil))
}

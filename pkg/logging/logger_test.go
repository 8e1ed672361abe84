// SPDX-License-Identifier: Apache-2.0

package logging_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scdb-go/scdb/pkg/db"
	"github.com/scdb-go/scdb/pkg/ident"
	"github.com/scdb-go/scdb/pkg/logging"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	t.Parallel()

	l := logging.NewNoop()
	l.LogUpdateStart("mtcars", time.Now())
	l.LogUpdateComplete("mtcars", time.Now(), 3, 1)
	l.LogLockWait("mtcars")
	l.LogLockStale("mtcars", "someone", 42)
	l.Info("hello")
	l.Error("uh oh")
}

func TestDBSinkDelegatesAndEnsuresTable(t *testing.T) {
	t.Parallel()

	id, err := ident.Parse(context.Background(), "scdb_log", ident.Postgres{}, nil, "public")
	assert.NoError(t, err)

	sink := logging.NewDBSink(logging.NewNoop(), &db.FakeDB{}, ident.Postgres{}, id)
	assert.NoError(t, sink.EnsureTable(context.Background()))

	// Best-effort append must never panic even against a no-op connection.
	sink.LogUpdateStart("mtcars", time.Now())
	sink.Info("queued snapshot update")
}

// SPDX-License-Identifier: Apache-2.0

package pidcheck_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scdb-go/scdb/pkg/pidcheck"
)

func TestOSAliveForSelf(t *testing.T) {
	t.Parallel()

	alive, err := (pidcheck.OS{}).Alive(context.Background(), int32(os.Getpid()))
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestFakeReportsConfiguredLiveness(t *testing.T) {
	t.Parallel()

	f := pidcheck.Fake{AlivePids: map[int32]bool{1: true}}

	alive, err := f.Alive(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, alive)

	alive, err = f.Alive(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, alive)
}

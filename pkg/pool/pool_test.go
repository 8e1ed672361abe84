// SPDX-License-Identifier: Apache-2.0

package pool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scdb-go/scdb/pkg/pool"
)

func TestRunAllCollectsResults(t *testing.T) {
	t.Parallel()

	p := pool.New[int](2)
	tasks := make([]func() (int, error), 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		tasks = append(tasks, func() (int, error) { return i * i, nil })
	}

	results, err := p.RunAll(context.Background(), tasks)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 4, 9, 16}, results)
}

func TestRunAllPropagatesFirstError(t *testing.T) {
	t.Parallel()

	p := pool.New[int](2)
	boom := errors.New("boom")
	tasks := []func() (int, error){
		func() (int, error) { return 1, nil },
		func() (int, error) { return 0, boom },
	}

	_, err := p.RunAll(context.Background(), tasks)
	assert.ErrorIs(t, err, boom)
}

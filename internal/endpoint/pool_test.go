package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssignRoundRobin(t *testing.T) {
	pool, err := NewPool([]string{"https://hooks.example/a", "https://hooks.example/b"})
	require.NoError(t, err)

	want := []string{
		"https://hooks.example/a",
		"https://hooks.example/b",
		"https://hooks.example/a",
		"https://hooks.example/b",
		"https://hooks.example/a",
	}
	for ordinal, expected := range want {
		got, err := pool.Assign(ordinal)
		require.NoError(t, err)
		require.Equal(t, expected, got, "ordinal %d", ordinal)
	}
}

func TestAssignIsDeterministic(t *testing.T) {
	endpoints := []string{"a", "b", "c"}
	pool, err := NewPool(endpoints)
	require.NoError(t, err)

	for ordinal := 0; ordinal < 30; ordinal++ {
		first, err := pool.Assign(ordinal)
		require.NoError(t, err)
		second, err := pool.Assign(ordinal)
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, endpoints[ordinal%len(endpoints)], first)
	}
}

func TestEmptyPool(t *testing.T) {
	_, err := NewPool(nil)
	require.ErrorIs(t, err, ErrEmptyPool)

	var zero Pool
	_, err = zero.Assign(0)
	require.ErrorIs(t, err, ErrEmptyPool)
}

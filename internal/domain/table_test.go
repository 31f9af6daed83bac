package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableTransitions(t *testing.T) {
	cases := []struct {
		from, to TableStatus
		ok       bool
	}{
		{TableAvailable, TableReserved, true},
		{TableAvailable, TableOccupied, false},
		{TableReserved, TableOccupied, true},
		{TableReserved, TableAvailable, true},
		{TableOccupied, TableBilling, true},
		{TableOccupied, TableAvailable, false},
		{TableBilling, TableCleaning, true},
		{TableCleaning, TableAvailable, true},
		{TableCleaning, TableReserved, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}

	err := TableOccupied.CheckTransition(TableAvailable)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Contains(t, err.Error(), "occupied to available")
}

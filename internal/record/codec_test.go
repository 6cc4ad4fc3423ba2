package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainlab/subscription-ledger/internal/lib/address"
	"github.com/onchainlab/subscription-ledger/internal/lib/history"
	"github.com/onchainlab/subscription-ledger/internal/models"
)

func testOwner() address.Address {
	var owner address.Address
	copy(owner[:], []byte("owner-key-owner-key-owner-key-00"))
	return owner
}

func TestMarshalUnmarshal_Roundtrip(t *testing.T) {
	rec := &models.Record{
		Owner:     testOwner(),
		PlanID:    42,
		StartTime: 1700000000,
		Duration:  2592000,
		Amount:    4990,
		Active:    true,
		History:   []int64{1700000000, 1702592000, 1705184000},
	}

	data, err := Marshal(rec)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, rec, decoded)
}

func TestMarshal_EmptyHistoryAndInactive(t *testing.T) {
	rec := &models.Record{
		Owner:     testOwner(),
		PlanID:    1,
		StartTime: -100,
		Duration:  3600,
		Amount:    0,
		Active:    false,
	}

	data, err := Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, headerSize, len(data))

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.False(t, decoded.Active)
	assert.Empty(t, decoded.History)
	assert.Equal(t, int64(-100), decoded.StartTime, "start time is signed")
}

func TestMarshal_FullHistoryFitsMaxSize(t *testing.T) {
	rec := &models.Record{
		Owner:   testOwner(),
		PlanID:  1,
		Active:  true,
		History: make([]int64, history.Capacity),
	}

	data, err := Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, MaxEncodedSize, len(data))
	assert.Equal(t, 157, MaxEncodedSize)
}

func TestMarshal_OversizedHistory(t *testing.T) {
	rec := &models.Record{
		Owner:   testOwner(),
		History: make([]int64, history.Capacity+1),
	}

	_, err := Marshal(rec)
	assert.Error(t, err)
}

func TestUnmarshal_InvalidData(t *testing.T) {
	valid, err := Marshal(&models.Record{
		Owner:   testOwner(),
		Active:  true,
		History: []int64{1, 2},
	})
	require.NoError(t, err)

	corruptCount := make([]byte, len(valid))
	copy(corruptCount, valid)
	// Завышенный счётчик записей журнала.
	corruptCount[headerSize-4] = 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated header", data: valid[:10]},
		{name: "truncated history", data: valid[:len(valid)-3]},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0x00)},
		{name: "history count overflow", data: corruptCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.Error(t, err)
		})
	}
}

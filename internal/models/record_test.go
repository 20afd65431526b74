package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(ChannelNames))
		for j := range row {
			row[j] = float64(i*100 + j)
		}
		rows[i] = row
	}
	return rows
}

func TestWindowData_RoundTrip(t *testing.T) {
	rows := makeRows(25)

	data, err := WindowDataFromRows(rows)
	require.NoError(t, err)
	require.Len(t, data, len(ChannelNames))

	back, err := data.SampleRows()
	require.NoError(t, err)
	assert.Equal(t, rows, back)
}

func TestWindowData_SampleIndexesSortNumerically(t *testing.T) {
	// 12个样本：确保"10"、"11"不会按字典序排到"2"之前
	rows := makeRows(12)

	data, err := WindowDataFromRows(rows)
	require.NoError(t, err)

	back, err := data.SampleRows()
	require.NoError(t, err)
	assert.Equal(t, rows, back)
}

func TestWindowData_MissingChannelIsError(t *testing.T) {
	data, err := WindowDataFromRows(makeRows(5))
	require.NoError(t, err)
	delete(data, "acc_la_x")

	_, err = data.SampleRows()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acc_la_x")
}

func TestWindowData_RaggedChannelsIsError(t *testing.T) {
	data, err := WindowDataFromRows(makeRows(5))
	require.NoError(t, err)
	delete(data["mag_rw_z"], "3")

	_, err = data.SampleRows()
	require.Error(t, err)
}

func TestWindowData_EmptyIsError(t *testing.T) {
	_, err := WindowData{}.SampleRows()
	require.Error(t, err)
}

func TestWindowDataFromRows_WrongWidthIsError(t *testing.T) {
	_, err := WindowDataFromRows([][]float64{{1, 2, 3}})
	require.Error(t, err)
}

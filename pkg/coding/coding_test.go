package coding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flapvw/vlinker-go/pkg/coding"
)

func TestGetSetRoundTrip(t *testing.T) {
	data := []byte{0x00, 0xFF, 0x55}
	for i := 0; i < len(data); i++ {
		for j := 0; j < 8; j++ {
			for _, v := range []int{0, 1} {
				updated, err := coding.Set(data, i, j, v)
				require.NoError(t, err)
				got, err := coding.Get(updated, i, j)
				require.NoError(t, err)
				assert.Equal(t, v, got)

				again, err := coding.Set(updated, i, j, v)
				require.NoError(t, err)
				assert.Equal(t, updated, again)
			}
		}
	}
}

func TestSetDoesNotMutateInput(t *testing.T) {
	data := []byte{0x00}
	_, err := coding.Set(data, 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, data)
}

func TestGetOutOfRangeErrors(t *testing.T) {
	_, err := coding.Get([]byte{0x00}, 1, 0)
	assert.Error(t, err)
	_, err = coding.Get([]byte{0x00}, 0, 8)
	assert.Error(t, err)
}

func TestSetRejectsInvalidValue(t *testing.T) {
	_, err := coding.Set([]byte{0x00}, 0, 0, 2)
	assert.Error(t, err)
}

func TestUpdateBatch(t *testing.T) {
	data := []byte{0x00, 0x00}
	out, err := coding.Update(data, []coding.BitUpdate{
		{Byte: 0, Bit: 0, Value: 1},
		{Byte: 1, Bit: 7, Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x80}, out)
}

func TestPrepareWrite(t *testing.T) {
	hexStr := coding.PrepareWrite("F190", []byte{0x01, 0x23})
	assert.Equal(t, "2EF1900123", hexStr)
}

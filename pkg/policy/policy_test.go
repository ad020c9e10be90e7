package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowList(t *testing.T) {
	al := NewAllowList(0, 7, 7, 255)

	var _ SenderPolicy = al

	assert.True(t, al.Allowed(0))
	assert.True(t, al.Allowed(7))
	assert.True(t, al.Allowed(255))
	assert.False(t, al.Allowed(1))
	assert.False(t, al.Allowed(254))

	assert.Equal(t, 3, al.Len())
	assert.Equal(t, []uint8{0, 7, 255}, al.Senders())
	assert.Equal(t, "0,7,255", al.String())
}

func TestEmptyAllowList(t *testing.T) {
	al := NewAllowList()

	for id := 0; id < 256; id++ {
		assert.False(t, al.Allowed(uint8(id)))
	}
	assert.Empty(t, al.Senders())
	assert.Equal(t, "", al.String())
}

func TestParseSenders(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []uint8
		wantErr bool
	}{
		{"single", "0", []uint8{0}, false},
		{"list", "0, 1,7", []uint8{0, 1, 7}, false},
		{"trailing comma", "3,", []uint8{3}, false},
		{"empty", "", nil, false},
		{"out of range", "256", nil, true},
		{"negative", "-1", nil, true},
		{"not a number", "a", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := ParseSenders(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

package cli

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"integer amount", "100", "100", false},
		{"decimal amount", "0.5", "0.5", false},
		{"surrounding whitespace", "  42.1  ", "42.1", false},
		{"empty", "", "", true},
		{"zero", "0", "", true},
		{"negative", "-5", "", true},
		{"not a number", "ten", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			want, _ := decimal.NewFromString(tt.want)
			assert.True(t, amount.Equal(want), "got %s", amount)
		})
	}
}

func TestParseBps(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"mid range", "7500", 7500, false},
		{"lower edge valid", "1", 1, false},
		{"upper edge valid", "9999", 9999, false},
		{"zero rejected", "0", 0, true},
		{"full scale rejected", "10000", 0, true},
		{"negative rejected", "-100", 0, true},
		{"empty", "", 0, true},
		{"not a number", "75%", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bps, err := ParseBps(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, bps)
		})
	}
}

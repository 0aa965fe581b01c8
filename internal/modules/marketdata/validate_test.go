package marketdata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validBar(date string, close float64) Bar {
	return Bar{Date: date, Open: close * 0.99, High: close * 1.01, Low: close * 0.98, Close: close}
}

func TestValidateBars(t *testing.T) {
	tests := []struct {
		name    string
		bars    []Bar
		wantErr bool
	}{
		{
			name:    "empty batch rejected",
			bars:    nil,
			wantErr: true,
		},
		{
			name:    "valid batch accepted",
			bars:    []Bar{validBar("2025-08-01", 10.50), validBar("2025-08-04", 10.62)},
			wantErr: false,
		},
		{
			name:    "missing date rejected",
			bars:    []Bar{{Open: 10, High: 11, Low: 9, Close: 10.5}},
			wantErr: true,
		},
		{
			name:    "NaN price rejected",
			bars:    []Bar{{Date: "2025-08-01", Open: 10, High: 11, Low: 9, Close: math.NaN()}},
			wantErr: true,
		},
		{
			name:    "zero price rejected",
			bars:    []Bar{{Date: "2025-08-01", Open: 10, High: 11, Low: 0, Close: 10.5}},
			wantErr: true,
		},
		{
			name:    "negative price rejected",
			bars:    []Bar{{Date: "2025-08-01", Open: 10, High: 11, Low: 9, Close: -10.5}},
			wantErr: true,
		},
		{
			name:    "high below low rejected",
			bars:    []Bar{{Date: "2025-08-01", Open: 10, High: 9, Low: 11, Close: 10}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBars(tt.bars)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "default port",
			url:      "ftp://tgftp.nws.noaa.gov/SL.us008001/ST.opnl/file.grib2.gz",
			wantHost: "tgftp.nws.noaa.gov:21",
			wantPath: "/SL.us008001/ST.opnl/file.grib2.gz",
		},
		{
			name:     "explicit port",
			url:      "ftp://mirror.example.com:2121/mrms/latest.grib2",
			wantHost: "mirror.example.com:2121",
			wantPath: "/mrms/latest.grib2",
		},
		{
			name:    "wrong scheme",
			url:     "https://mrms.ncep.noaa.gov/file.grib2",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://tgftp.nws.noaa.gov",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"bytes"
	"context"
	"hash/crc32"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteCountWriter(t *testing.T) {
	buf := new(bytes.Buffer)
	counter := &byteCountWriter{dest: buf}

	testData := []byte("Hello, World!")
	n, err := counter.Write(testData)
	require.NoError(t, err)
	assert.Equal(t, len(testData), n)

	_, err = counter.Write(testData[:5])
	require.NoError(t, err)

	assert.Equal(t, int64(len(testData)+5), counter.bytesWritten)
	assert.Equal(t, "Hello, World!Hello", buf.String())
}

func TestCRCReader(t *testing.T) {
	data := strings.Repeat("streaming zip ", 1000)
	cr := newCRCReader(strings.NewReader(data))

	out, err := io.ReadAll(cr)
	require.NoError(t, err)

	assert.Equal(t, data, string(out))
	assert.Equal(t, crc32.ChecksumIEEE([]byte(data)), cr.Sum32())
	assert.Equal(t, int64(len(data)), cr.n)
}

func TestContextReader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cr := &contextReader{ctx: ctx, r: strings.NewReader("abcdef")}

	p := make([]byte, 3)
	n, err := cr.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cancel()
	_, err = cr.Read(p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeToMsDos(t *testing.T) {
	tests := []struct {
		name         string
		time         time.Time
		expectedDate uint16
		expectedTime uint16
	}{
		{
			name:         "epoch",
			time:         time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
			expectedDate: 0x0021, // 0<<9 | 1<<5 | 1
			expectedTime: 0x0000,
		},
		{
			name:         "specific date",
			time:         time.Date(2023, 12, 15, 14, 30, 15, 0, time.UTC),
			expectedDate: 0x578F, // 43<<9 | 12<<5 | 15
			expectedTime: 0x73C7, // 14<<11 | 30<<5 | 7
		},
		{
			name:         "before 1980 clamps to earliest",
			time:         time.Date(1970, 6, 15, 12, 0, 0, 0, time.UTC),
			expectedDate: 0x0021,
			expectedTime: 0x0000,
		},
		{
			name:         "after 2107 clamps to latest",
			time:         time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC),
			expectedDate: 0xFF9F, // 127<<9 | 12<<5 | 31
			expectedTime: 0xBF7D, // 23<<11 | 59<<5 | 29
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, timeVal := timeToMsDos(tt.time)
			assert.Equalf(t, tt.expectedDate, date, "date %04x", date)
			assert.Equalf(t, tt.expectedTime, timeVal, "time %04x", timeVal)
		})
	}
}

func TestMsDosToTime(t *testing.T) {
	tests := []struct {
		name     string
		date     uint16
		timeVal  uint16
		expected time.Time
	}{
		{
			name:     "epoch",
			date:     0x0021,
			timeVal:  0x0000,
			expected: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "two second resolution",
			date:     0x578F,
			timeVal:  0x73C7,
			expected: time.Date(2023, 12, 15, 14, 30, 14, 0, time.UTC),
		},
		{
			name:     "invalid month clamped",
			date:     0x0001,
			timeVal:  0x0000,
			expected: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "invalid day clamped",
			date:     0x0020,
			timeVal:  0x0000,
			expected: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.expected.Equal(msDosToTime(tt.date, tt.timeVal)))
		})
	}
}

func TestMsDosRoundTrip(t *testing.T) {
	original := time.Date(2015, 3, 7, 9, 41, 22, 0, time.UTC)
	date, timeVal := timeToMsDos(original)
	assert.True(t, original.Equal(msDosToTime(date, timeVal)))
}

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadRight(t *testing.T) {
	tests := []struct {
		name     string
		str      string
		width    int
		expected string
	}{
		{"Empty string", "", 5, "     "},
		{"Short string", "abc", 10, "abc       "},
		{"Exact width", "hello", 5, "hello"},
		{"String too long", "this is a very long string", 10, "this is..."},
		{"Width 4", "hello", 4, "h..."},
		{"Unicode characters", "café", 8, "café    "},
		{"Chinese characters", "你好", 8, "你好    "},
		{"Mixed characters", "hello世界", 12, "hello世界   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PadRight(tt.str, tt.width))
		})
	}
}

func TestTable(t *testing.T) {
	out := Table([][]string{
		{"NAME", "ADDRESS", "VERSION"},
		{"kitchen-hub", "192.168.1.20:5540", "0"},
		{"lamp", "192.168.1.7:5540", "1"},
	})

	expected := "" +
		"NAME         ADDRESS            VERSION\n" +
		"kitchen-hub  192.168.1.20:5540  0\n" +
		"lamp         192.168.1.7:5540   1\n"
	assert.Equal(t, expected, out)
	assert.Empty(t, Table(nil))
}

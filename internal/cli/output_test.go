package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Success("seeded %d badges", 3)
	p.Warning("skipped %q", "Mint Master")
	p.Error("failed")
	p.Info("done")

	assert.Equal(t, "✓ seeded 3 badges\n! skipped \"Mint Master\"\n✗ failed\ni done\n", buf.String())
}

func TestSpinner_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewPrinter(&buf).Spinner("importing shops")

	s.Start()
	s.Start()
	s.Success("imported %d", 2)
	s.Stop()

	assert.Equal(t, "importing shops...\n✓ imported 2\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		500 * time.Millisecond:        "< 1s",
		42 * time.Second:              "42s",
		3*time.Minute + 5*time.Second: "3m5s",
		2*time.Hour + 15*time.Minute:  "2h15m",
	}
	for d, want := range cases {
		assert.Equal(t, want, FormatDuration(d))
	}
}

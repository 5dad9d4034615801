package provision

import (
	"bytes"
	"testing"
)

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{W: &buf}

	r.Errorf("%s is expired", "abc")
	r.Warnf("abc will expire in %d days", 3)

	want := "ERROR: abc is expired\nWARNING: abc will expire in 3 days\n"
	if buf.String() != want {
		t.Errorf("Reporter wrote %q, want %q", buf.String(), want)
	}
}

func TestReporter_Color(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{W: &buf, Color: true}

	r.Errorf("boom")
	r.Warnf("careful")

	want := "\x1b[31mERROR: boom\x1b[0m\n\x1b[33mWARNING: careful\x1b[0m\n"
	if buf.String() != want {
		t.Errorf("Reporter wrote %q, want %q", buf.String(), want)
	}
}

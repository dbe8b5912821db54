package vm

import (
	"bytes"
	"testing"
)

func TestStdIOChannels(t *testing.T) {
	var stdout, stderr bytes.Buffer
	io := &StdIO{Stdout: &stdout, Stderr: &stderr}

	if n, err := io.WriteBytes(ChannelStdout, []byte("out")); n != 3 || err != nil {
		t.Errorf("stdout write = %d, %v", n, err)
	}
	if n, err := io.WriteBytes(ChannelStderr, []byte("err")); n != 3 || err != nil {
		t.Errorf("stderr write = %d, %v", n, err)
	}
	if _, err := io.WriteBytes(7, []byte("x")); err == nil {
		t.Error("unknown channel accepted")
	}
	if stdout.String() != "out" || stderr.String() != "err" {
		t.Errorf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

func TestBufferIOMaxChunk(t *testing.T) {
	b := NewBufferIO()
	b.MaxChunk = 3

	n, err := b.WriteBytes(ChannelStdout, []byte("abcdef"))
	if n != 3 || err != nil {
		t.Fatalf("write = %d, %v", n, err)
	}
	if b.String(ChannelStdout) != "abc" {
		t.Errorf("buffer = %q, want abc", b.String(ChannelStdout))
	}
	if b.Bytes(ChannelStderr) != nil {
		t.Error("untouched channel has data")
	}
}

func TestParseWritePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    WritePolicy
		wantErr bool
	}{
		{"", WriteBestEffort, false},
		{"best-effort", WriteBestEffort, false},
		{"retry", WriteRetry, false},
		{"strict", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseWritePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWritePolicy(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseWritePolicy(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() != tt.in && tt.in != "" {
			t.Errorf("%s.String() = %q", got, got.String())
		}
	}
}

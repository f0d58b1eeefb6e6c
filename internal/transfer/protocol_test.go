package transfer

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, "a.txt"))
	require.Equal(t, "Filename: a.txt\n", buf.String())
}

func TestWriteHeader_StripsLineBreaks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, "evil\nname\r.txt"))
	require.Equal(t, "Filename: evilname.txt\n", buf.String())
}

func TestReadHeader_LeavesPayloadUntouched(t *testing.T) {
	req := require.New(t)
	r := bufio.NewReader(strings.NewReader("Filename: report.pdf\n\x00\x01\nrest"))

	name, err := ReadHeader(r)
	req.NoError(err)
	req.Equal("report.pdf", name)

	payload, err := io.ReadAll(r)
	req.NoError(err)
	req.Equal([]byte("\x00\x01\nrest"), payload)
}

func TestReadHeader_Defaults(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "no prefix", input: "hello\npayload", want: DefaultDownloadName},
		{name: "empty name", input: "Filename: \npayload", want: DefaultDownloadName},
		{name: "crlf terminated", input: "Filename: x.bin\r\n", want: "x.bin"},
		{name: "inner spaces kept", input: "Filename:  a.txt \n", want: " a.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadHeader(bufio.NewReader(strings.NewReader(tt.input)))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReadHeader_IncompleteHeader(t *testing.T) {
	for _, input := range []string{"", "Filename: x.bin", "Filen"} {
		_, err := ReadHeader(bufio.NewReader(strings.NewReader(input)))
		require.True(t, errors.Is(err, ErrHeaderIncomplete), "input %q", input)
	}
}

func TestReadHeader_TooLong(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(strings.Repeat("a", maxHeaderLen+10)))
	_, err := ReadHeader(r)
	require.True(t, errors.Is(err, ErrHeaderTooLong))
}

func TestProgressTracker_Lifecycle(t *testing.T) {
	req := require.New(t)
	pt := NewProgressTracker()

	// Updates to unknown codes are ignored
	pt.SetState(1, StateSending)
	_, ok := pt.GetProgress(1)
	req.False(ok)

	pt.StartTracking(1, "a.txt")
	pt.SetState(1, StateListening)
	pt.AddBytes(1, 10)
	pt.AddBytes(1, 5)
	pt.Finish(1, OutcomeServed)

	p, ok := pt.GetProgress(1)
	req.True(ok)
	req.Equal(StateClosed, p.State)
	req.Equal(OutcomeServed, p.Outcome)
	req.Equal(int64(15), p.BytesSent)

	// A new offer on the same code starts from scratch
	pt.StartTracking(1, "b.txt")
	p, _ = pt.GetProgress(1)
	req.Equal(StateIdle, p.State)
	req.Zero(p.BytesSent)
	req.Equal("b.txt", p.FileName)
}

package raft

import (
	"bytes"
	"net"
	"reflect"
	"testing"
)

func TestWriteFrameFormat(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteFrame(&buf, []byte("hello")); err != nil {
		t.Fatalf("cannot write frame: %v", err)
	}

	expected := "         5hello"
	if buf.String() != expected {
		t.Errorf("frame is %q, expected %q", buf.String(), expected)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("a"),
		bytes.Repeat([]byte("x"), 4096),
	}

	var buf bytes.Buffer

	for _, payload := range payloads {
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatalf("cannot write frame: %v", err)
		}
	}

	for _, payload := range payloads {
		payload2, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("cannot read frame: %v", err)
		}

		if !bytes.Equal(payload, payload2) {
			t.Errorf("read %d bytes, expected %d bytes",
				len(payload2), len(payload))
		}
	}
}

func TestReadFrameInvalidHeader(t *testing.T) {
	tests := []string{
		"abcdefghijpayload",
		"        -1",
		"          ",
	}

	for _, test := range tests {
		if _, err := ReadFrame(bytes.NewReader([]byte(test))); err == nil {
			t.Errorf("reading frame %q succeeded, expected an error", test)
		}
	}
}

func TestReadFrameTruncated(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader([]byte("     "))); err == nil {
		t.Errorf("reading a truncated header succeeded, expected an error")
	}

	if _, err := ReadFrame(bytes.NewReader([]byte("        10abc"))); err == nil {
		t.Errorf("reading a truncated payload succeeded, expected an error")
	}
}

func TestFrameMsgOverConnection(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	msg := &RequestVote{
		Source: 0, Dest: 1, Term: 7,
		LastLogIndex: 3, LastLogTerm: 6,
	}

	go func() {
		data, err := EncodeMsg(msg)
		if err != nil {
			t.Errorf("cannot encode message: %v", err)
			return
		}

		if err := WriteFrame(client, data); err != nil {
			t.Errorf("cannot write frame: %v", err)
		}
	}()

	payload, err := ReadFrame(server)
	if err != nil {
		t.Fatalf("cannot read frame: %v", err)
	}

	msg2, err := DecodeMsg(payload)
	if err != nil {
		t.Fatalf("cannot decode message: %v", err)
	}

	if !reflect.DeepEqual(msg, msg2) {
		t.Errorf("received %v, expected %v", msg2, msg)
	}
}

package transport

import (
	"net"
	"testing"
	"time"

	"github.com/heapcap/heapcap/internal/wire"
)

func TestConnSendReceive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	serverConn := NewConn(server, nil)
	clientConn := NewConn(client, nil)

	received := make(chan wire.Frame, 1)
	go serverConn.ReadLoop(func(f wire.Frame) error {
		payload := append([]byte(nil), f.Payload...)
		received <- wire.Frame{Type: f.Type, Payload: payload}
		return nil
	})

	go func() {
		msg := wire.AllocMsg{Frame: 1, Addr: 0x1000, Size: 48, TypeName: "Foo", CallStack: "Bar\n"}
		w := wire.NewWriter(nil)
		msg.Encode(w)
		clientConn.Send(wire.TypeAlloc, w.Bytes())
	}()

	select {
	case f := <-received:
		if f.Type != wire.TypeAlloc {
			t.Fatalf("Type: want %d got %d", wire.TypeAlloc, f.Type)
		}
		got, err := wire.DecodeAlloc(wire.NewReader(f.Payload))
		if err != nil {
			t.Fatalf("DecodeAlloc: %v", err)
		}
		if got.Addr != 0x1000 || got.TypeName != "Foo" {
			t.Fatalf("decoded mismatch: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestConnCloseUnblocksReadLoop(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	serverConn := NewConn(server, nil)
	done := make(chan error, 1)
	go func() {
		done <- serverConn.ReadLoop(func(wire.Frame) error { return nil })
	}()

	serverConn.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("want error from ReadLoop after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("ReadLoop did not return after Close")
	}
}

package main

import (
	"errors"
	"net"
	"testing"

	"github.com/banshee-data/scanhead/internal/discovery"
	"github.com/banshee-data/scanhead/internal/fwver"
	"github.com/banshee-data/scanhead/internal/netio"
	"github.com/banshee-data/scanhead/internal/wire"
)

func TestResolveAddrFoundViaDiscovery(t *testing.T) {
	discover := func(fwver.Version) ([]discovery.Discovered, error) {
		return []discovery.Discovered{{Serial: 42, IPAddr: "10.0.0.5"}}, nil
	}
	addr, err := resolveAddr(42, discover)
	if err != nil {
		t.Fatalf("resolveAddr: %v", err)
	}
	if addr != "10.0.0.5" {
		t.Fatalf("got %q, want 10.0.0.5", addr)
	}
}

func TestResolveAddrFallsBackToMDNS(t *testing.T) {
	discover := func(fwver.Version) ([]discovery.Discovered, error) {
		return nil, nil
	}
	addr, err := resolveAddr(50, discover)
	if err != nil {
		t.Fatalf("resolveAddr: %v", err)
	}
	if addr != discovery.MDNSName(50) {
		t.Fatalf("got %q, want %q", addr, discovery.MDNSName(50))
	}
}

func TestResolveAddrDiscoverError(t *testing.T) {
	discover := func(fwver.Version) ([]discovery.Discovered, error) {
		return nil, errors.New("no interfaces")
	}
	if _, err := resolveAddr(1, discover); err == nil {
		t.Fatal("expected discover error to propagate")
	}
}

func TestPowerCycleSendsRebootRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:21232")
	if err != nil {
		t.Skipf("cannot bind update port for test: %v", err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := netio.NewFramedSocket(conn.(*net.TCPConn)).Read(buf)
		received <- buf[:n]
	}()

	discover := func(fwver.Version) ([]discovery.Discovered, error) {
		return []discovery.Discovered{{Serial: 7, IPAddr: "127.0.0.1"}}, nil
	}
	if err := powerCycle(7, discover); err != nil {
		t.Fatalf("powerCycle: %v", err)
	}

	select {
	case buf := <-received:
		env, err := wire.DecodeEnvelope(buf)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != wire.MsgRebootRequest {
			t.Fatalf("got message type %v, want MsgRebootRequest", env.Type)
		}
	default:
		t.Fatal("update port never received a message")
	}
}

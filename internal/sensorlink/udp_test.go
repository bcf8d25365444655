package sensorlink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPListenerHandleDatagram(t *testing.T) {
	muteLogs(t)
	rec := &lineRecorder{}
	l := NewUDPListener(UDPListenerConfig{Handler: rec.handle})

	l.HandleDatagram([]byte("BARO,1,2,3\nBAD\n\n  IMU,1,0,0,0,0,0,0  "))

	assert.Equal(t, []string{"BARO,1,2,3", "BAD", "IMU,1,0,0,0,0,0,0"}, rec.got())
	assert.Equal(t, LinkStats{Lines: 3, Errors: 1}, l.Stats())
}

func TestUDPListenerReceives(t *testing.T) {
	rec := &lineRecorder{}
	l := NewUDPListener(UDPListenerConfig{Address: "127.0.0.1:0", Handler: rec.handle})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	select {
	case <-l.Started():
	case err := <-done:
		t.Fatalf("listener failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not start")
	}

	conn, err := net.Dial("udp", l.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("FLOW,1,0.1,0.2,1,2,99\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "FLOW,1,0.1,0.2,1,2,99", rec.got()[0])

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestUDPListenerBadAddress(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{Address: "not an address"})
	assert.Error(t, l.Start(context.Background()))
	assert.Nil(t, l.LocalAddr())
}

package supervisor

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalHandler_ShutdownFiresOnce(t *testing.T) {
	h := NewSignalHandler()
	defer h.Stop()

	h.fireShutdown()
	h.fireShutdown() // must not panic on double-close

	select {
	case <-h.Shutdown():
	case <-time.After(time.Second):
		t.Fatal("shutdown channel was not closed")
	}
}

func TestSignalHandler_ShutdownAndUpdateAreIndependent(t *testing.T) {
	h := NewSignalHandler()
	defer h.Stop()

	h.fireUpdateRequired()

	select {
	case <-h.UpdateRequired():
	case <-time.After(time.Second):
		t.Fatal("update-required channel was not closed")
	}

	select {
	case <-h.Shutdown():
		t.Fatal("shutdown must not fire from an update-required signal")
	default:
	}
}

func TestSignalHandler_RespondsToRealSignal(t *testing.T) {
	h := NewSignalHandler()
	defer h.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-h.UpdateRequired():
	case <-time.After(2 * time.Second):
		t.Fatal("SIGUSR1 did not trigger update-required")
	}

	assert.True(t, true)
}

package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justanotherdot/ukernel/internal/config"
)

func waitOrTimeout(t *testing.T, k *Kernel, d time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- k.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(d):
		t.Fatal("workload never completed")
	}
}

func TestSpawnedTasksRunRoundRobinToCompletion(t *testing.T) {
	k := New(config.Default())
	defer k.Shutdown()

	var mu sync.Mutex
	var order []string

	body := func(name string) TaskBody {
		return func(sys *Syscalls) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			sys.Yield()
			sys.Exit(0)
		}
	}

	k.Spawn("a", body("a"), 0)
	k.Spawn("b", body("b"), 0)
	k.Boot()

	waitOrTimeout(t, k, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b"}, order)
}

func TestSendAndRecvAcrossSpawnedTasks(t *testing.T) {
	k := New(config.Default())
	defer k.Shutdown()

	received := make(chan string, 1)

	coordinator := func(sys *Syscalls) {
		buf := make([]byte, 32)
		n, err := sys.Recv(buf)
		if err == nil {
			received <- string(buf[:n])
		}
	}
	sender := func(sys *Syscalls) {
		sys.Yield()
		sys.Send(1, []byte("ping"))
		sys.Exit(0)
	}

	k.Spawn("coordinator", coordinator, 0)
	k.Spawn("sender", sender, 0)
	k.Boot()

	select {
	case msg := <-received:
		assert.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator never received the message")
	}
}

func TestPanicHaltsKernelAndLogsConsole(t *testing.T) {
	k := New(config.Default())
	defer k.Shutdown()

	require.False(t, k.Halted())
	k.Panic("test failure", nil)
	assert.True(t, k.Halted())
	assert.NotEmpty(t, k.Console().Lines())
}

func TestHandlePageFaultThroughKernel(t *testing.T) {
	k := New(config.Default())
	defer k.Shutdown()

	cfg := config.Default()
	k.regs.SetCR2(cfg.UserBase)
	k.HandlePageFault(nil)
	assert.Equal(t, 1, k.VM().DescriptorCount())
}

// Command ukernel boots the kernel with a small demonstration workload:
// three tasks that yield round-robin and exchange a handful of IPC
// messages. It exists to give the kernel core a runnable host process;
// it is not itself part of the kernel's public API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/justanotherdot/ukernel/internal/config"
	"github.com/justanotherdot/ukernel/internal/kernel"
)

func main() {
	k := kernel.New(config.Default())
	defer k.Shutdown()

	worker := func(id int) kernel.TaskBody {
		return func(sys *kernel.Syscalls) {
			for i := 0; i < 3; i++ {
				sys.Yield()
			}
			msg := []byte(fmt.Sprintf("hello from worker %d", id))
			sys.Send(1, msg)
			sys.Yield()
			sys.Exit(0)
		}
	}

	coordinator := func(sys *kernel.Syscalls) {
		buf := make([]byte, 256)
		for i := 0; i < 2; i++ {
			n, err := sys.Recv(buf)
			if err != nil {
				fmt.Fprintln(os.Stderr, "recv error:", err)
				continue
			}
			fmt.Println(string(buf[:n]))
		}
		sys.Exit(0)
	}

	k.Spawn("coordinator", coordinator, 0)
	k.Spawn("worker-a", worker(1), 0)
	k.Spawn("worker-b", worker(2), 0)

	k.Boot()

	// Drive a handful of timer ticks in the background so Preempt has a
	// chance to run even though every task body here only ever yields
	// voluntarily.
	stopTicking := make(chan struct{})
	go func() {
		for i := 0; i < 16; i++ {
			select {
			case <-stopTicking:
				return
			default:
				k.RunTimerOnce()
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()

	if err := k.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "workload error:", err)
	}
	close(stopTicking)

	snap := k.Metrics().Snapshot()
	fmt.Printf("context switches: %d, messages sent: %d, messages delivered: %d\n",
		snap.ContextSwitches, snap.MessagesSent, snap.MessagesDelivered)
}

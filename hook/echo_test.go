//go:build !windows

package hook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	oc "github.com/open-coroutine/opencoroutine-go"
)

// TestEcho_ThreeVectoredMessagesRoundTrip exercises the full hooked TCP
// path end to end: Accept/Connect establish the connection, then three
// 26-byte messages are exchanged with Writev/Readv, each split across two
// iovecs of uneven length, and each Readv must return all 26 bytes.
func TestEcho_ThreeVectoredMessagesRoundTrip(t *testing.T) {
	listenFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(listenFD)
	require.NoError(t, unix.Bind(listenFD, &unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Listen(listenFD, 1))

	sa, err := unix.Getsockname(listenFD)
	require.NoError(t, err)
	addr := sa.(*unix.SockaddrInet4)

	sched := oc.NewScheduler(1)
	stopDriving := driveScheduler(t, sched)
	defer stopDriving()

	serverDone := make(chan error, 1)
	server := oc.NewCoroutine("echo-server", func(y *oc.Yielder, _ any) (any, error) {
		connFD, _, aerr := Accept(y, listenFD, oc.ForeverDuration)
		if aerr != nil {
			return nil, aerr
		}
		defer Close(connFD)
		for i := 0; i < 3; i++ {
			head := make([]byte, 10)
			tail := make([]byte, 16)
			n, rerr := Readv(y, connFD, [][]byte{head, tail}, oc.ForeverDuration)
			if rerr != nil {
				return nil, rerr
			}
			if n != 26 {
				return nil, fmt.Errorf("server: short read %d on message %d", n, i)
			}
			if _, werr := Writev(y, connFD, [][]byte{head, tail}, oc.ForeverDuration); werr != nil {
				return nil, werr
			}
		}
		return nil, nil
	}, 0)
	server.AddListener(func(_ *oc.Coroutine, _, to oc.CoroutineState) {
		switch to.Kind {
		case oc.StateComplete:
			serverDone <- nil
		case oc.StateError:
			serverDone <- fmt.Errorf("server: %s", to.Message)
		}
	})
	sched.Spawn(server, nil)

	clientFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer Close(clientFD)

	clientDone := make(chan error, 1)
	client := oc.NewCoroutine("echo-client", func(y *oc.Yielder, _ any) (any, error) {
		if cerr := Connect(y, clientFD, &unix.SockaddrInet4{Port: addr.Port, Addr: addr.Addr}, oc.ForeverDuration); cerr != nil {
			return nil, cerr
		}
		for i := 0; i < 3; i++ {
			msg := make([]byte, 26)
			for j := range msg {
				msg[j] = byte('A' + (i*7+j)%26)
			}
			part1 := append([]byte(nil), msg[:11]...)
			part2 := append([]byte(nil), msg[11:]...)
			n, werr := Writev(y, clientFD, [][]byte{part1, part2}, oc.ForeverDuration)
			if werr != nil {
				return nil, werr
			}
			if n != 26 {
				return nil, fmt.Errorf("client: short write %d on message %d", n, i)
			}

			recvHead := make([]byte, 5)
			recvTail := make([]byte, 21)
			rn, rerr := Readv(y, clientFD, [][]byte{recvHead, recvTail}, oc.ForeverDuration)
			if rerr != nil {
				return nil, rerr
			}
			if rn != 26 {
				return nil, fmt.Errorf("client: short echo read %d on message %d", rn, i)
			}
			got := append(append([]byte(nil), recvHead...), recvTail...)
			for j := range msg {
				if got[j] != msg[j] {
					return nil, fmt.Errorf("client: echo mismatch on message %d at byte %d", i, j)
				}
			}
		}
		return nil, nil
	}, 0)
	client.AddListener(func(_ *oc.Coroutine, _, to oc.CoroutineState) {
		switch to.Kind {
		case oc.StateComplete:
			clientDone <- nil
		case oc.StateError:
			clientDone <- fmt.Errorf("client: %s", to.Message)
		}
	})
	sched.Spawn(client, nil)

	timeout := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case serr := <-serverDone:
			require.NoError(t, serr)
			serverDone = nil
		case cerr := <-clientDone:
			require.NoError(t, cerr)
			clientDone = nil
		case <-timeout:
			t.Fatal("echo scenario timed out")
		}
	}
}

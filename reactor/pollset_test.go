//go:build unix

package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollSet_ReadinessOnWrite(t *testing.T) {
	a, b := socketpair(t)

	ps, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ps.Close()

	if err := ps.Add(a, InterestRead, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ps.Size() != 1 {
		t.Fatalf("expected size 1, got %d", ps.Size())
	}

	if _, err := unix.Write(b, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 4)
	n, err := ps.Poll(500*time.Millisecond, events)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 1 || events[0].Socket != a || !events[0].Ready {
		t.Fatalf("expected one ready event on %d, got n=%d events=%+v", a, n, events[:n])
	}

	ps.Remove(a)
	if ps.Size() != 0 {
		t.Fatalf("expected size 0 after remove, got %d", ps.Size())
	}
}

func TestPollSet_FullReturnsErrFull(t *testing.T) {
	ps, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ps.Close()

	a, _ := socketpair(t)
	c, _ := socketpair(t)

	if err := ps.Add(a, InterestRead, 0); err != nil {
		t.Fatalf("Add first: %v", err)
	}
	if err := ps.Add(c, InterestRead, 0); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestPollSet_MaintainSweepsExpiredEntries(t *testing.T) {
	ps, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ps.Close()

	a, _ := socketpair(t)
	if err := ps.Add(a, InterestRead, 20*time.Millisecond); err != nil {
		t.Fatalf("Add: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	expired := ps.Maintain()
	if len(expired) != 1 || expired[0] != a {
		t.Fatalf("expected %d to expire, got %v", a, expired)
	}
	if ps.Size() != 0 {
		t.Fatalf("expected size 0 after maintain sweep, got %d", ps.Size())
	}
}

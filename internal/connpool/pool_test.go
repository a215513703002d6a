package connpool

import (
	"errors"
	"testing"
)

func TestIsConnectionError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("use of closed network connection"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("invalid credentials"), false},
	}
	for _, c := range cases {
		if got := IsConnectionError(c.err); got != c.want {
			t.Errorf("IsConnectionError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxConnectionsPerHost <= 0 {
		t.Fatal("expected a positive default MaxConnectionsPerHost")
	}
	if cfg.IdleTimeout <= 0 || cfg.WaiterTimeout <= 0 {
		t.Fatal("expected positive default timeouts")
	}
}

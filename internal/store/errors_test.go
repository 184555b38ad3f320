package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/lib/pq"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil passes through", nil, nil},
		{"bad conn", driver.ErrBadConn, ErrUnavailable},
		{"conn done", sql.ErrConnDone, ErrUnavailable},
		{"eof", io.EOF, ErrUnavailable},
		{"net error", fakeNetError{}, ErrUnavailable},
		{"wrapped net error", fmt.Errorf("exec: %w", fakeNetError{}), ErrUnavailable},
		{"pq connection exception", &pq.Error{Code: "08006"}, ErrUnavailable},
		{"pq insufficient resources", &pq.Error{Code: "53300"}, ErrUnavailable},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, ErrUnavailable},
		{"pq system error", &pq.Error{Code: "58030"}, ErrUnavailable},
		{"pq constraint violation", &pq.Error{Code: "23505"}, ErrWriteFailed},
		{"pq datatype mismatch", &pq.Error{Code: "42804"}, ErrWriteFailed},
		{"plain error", errors.New("something else"), ErrWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyWriteError(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Errorf("classifyWriteError(nil) = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyWriteError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyReadError(t *testing.T) {
	// Read-side failures always mean the store is unreachable for readers,
	// statement-level errors included.
	for _, in := range []error{
		driver.ErrBadConn,
		&pq.Error{Code: "08001"},
		&pq.Error{Code: "42P01"},
		errors.New("scan failure"),
	} {
		if got := classifyReadError(in); !errors.Is(got, ErrUnavailable) {
			t.Errorf("classifyReadError(%v) = %v, want ErrUnavailable", in, got)
		}
	}
}

func TestClassifyPreservesCause(t *testing.T) {
	cause := &pq.Error{Code: "23505", Message: "duplicate key"}
	got := classifyWriteError(cause)

	if !errors.Is(got, ErrWriteFailed) {
		t.Fatalf("classifyWriteError() = %v, want ErrWriteFailed", got)
	}
	if got.Error() == ErrWriteFailed.Error() {
		t.Error("classified error lost the original detail")
	}
}

func TestIsUnavailable(t *testing.T) {
	if !IsUnavailable(fmt.Errorf("%w: down", ErrUnavailable)) {
		t.Error("IsUnavailable() = false for wrapped ErrUnavailable")
	}
	if IsUnavailable(fmt.Errorf("%w: rejected", ErrWriteFailed)) {
		t.Error("IsUnavailable() = true for ErrWriteFailed")
	}
	if IsUnavailable(nil) {
		t.Error("IsUnavailable(nil) = true")
	}
}

func TestValueText(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"float", 120.5, "120.5"},
		{"integral float", 97.0, "97"},
		{"string", "airborne", "airborne"},
		{"bool", true, "true"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valueText(tt.in); got != tt.want {
				t.Errorf("valueText(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

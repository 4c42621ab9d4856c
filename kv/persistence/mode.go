package persistence

import "fmt"

// Mode is the kind of transaction requested from RunTransaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	// ReadWritePrimary is a ReadWrite transaction that additionally requires
	// the primary role. The role is checked before the transaction opens.
	ReadWritePrimary
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case ReadWritePrimary:
		return "readwrite-primary"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) writable() bool {
	return m != ReadOnly
}

// PrimaryChecker answers whether this process currently holds the primary
// role. Election itself happens elsewhere.
type PrimaryChecker interface {
	IsPrimary() bool
}

// StaticPrimary is a PrimaryChecker with a fixed answer.
type StaticPrimary bool

func (s StaticPrimary) IsPrimary() bool {
	return bool(s)
}

// PrimaryFunc adapts a function to PrimaryChecker.
type PrimaryFunc func() bool

func (f PrimaryFunc) IsPrimary() bool {
	return f()
}

type options struct {
	primary PrimaryChecker
}

type Option func(*options)

// WithPrimaryChecker injects the primary role check used for ReadWritePrimary
// transactions.
func WithPrimaryChecker(c PrimaryChecker) Option {
	return func(o *options) {
		o.primary = c
	}
}

func buildOptions(primary bool, opts []Option) options {
	o := options{primary: StaticPrimary(primary)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

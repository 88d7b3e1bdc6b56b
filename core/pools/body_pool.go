package pools

import (
	"errors"
	"fmt"
	"sync"
)

// MaxBodySize is the largest request body the default pool will buffer
const MaxBodySize = 8 << 20

// DefaultBodyClasses are the buffer sizes of the default pool, ascending
var DefaultBodyClasses = []int{4 << 10, 64 << 10, 1 << 20, MaxBodySize}

var (
	ErrBodyTooLarge     = errors.New("pools: body exceeds largest buffer class")
	ErrNegativeBodySize = errors.New("pools: negative body size")
	ErrBadBodyClasses   = errors.New("pools: body classes must be positive and ascending")
)

// BodyPool hands out request body buffers from a fixed set of size classes.
// A size above the largest class is refused, never allocated, so a declared
// length alone cannot make a worker allocate more than Max bytes.
type BodyPool struct {
	classes []*bodyClass
}

type bodyClass struct {
	size int
	pool sync.Pool
}

// NewBodyPool creates a pool with the given classes, or DefaultBodyClasses
// when none are given
func NewBodyPool(classes ...int) (*BodyPool, error) {
	if len(classes) == 0 {
		classes = DefaultBodyClasses
	}

	p := &BodyPool{classes: make([]*bodyClass, 0, len(classes))}
	prev := 0
	for _, size := range classes {
		if size <= prev {
			return nil, fmt.Errorf("%w: %v", ErrBadBodyClasses, classes)
		}
		prev = size

		c := &bodyClass{size: size}
		c.pool.New = func() any {
			buf := make([]byte, c.size)
			return &buf
		}
		p.classes = append(p.classes, c)
	}

	return p, nil
}

// Max returns the largest size Get accepts
func (p *BodyPool) Max() int {
	return p.classes[len(p.classes)-1].size
}

// Get returns a buffer of length n taken from the smallest class that fits
func (p *BodyPool) Get(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeBodySize, n)
	}
	c := p.classFor(n)
	if c == nil {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, n, p.Max())
	}
	buf := *c.pool.Get().(*[]byte)
	return buf[:n], nil
}

// Put recycles a buffer obtained from Get. Buffers whose capacity matches no
// class are dropped.
func (p *BodyPool) Put(buf []byte) {
	for _, c := range p.classes {
		if cap(buf) == c.size {
			buf = buf[:c.size]
			c.pool.Put(&buf)
			return
		}
	}
}

func (p *BodyPool) classFor(n int) *bodyClass {
	for _, c := range p.classes {
		if n <= c.size {
			return c
		}
	}
	return nil
}

var defaultBodyPool, _ = NewBodyPool()

// DefaultBodyPool returns the process-wide pool built from DefaultBodyClasses
func DefaultBodyPool() *BodyPool {
	return defaultBodyPool
}

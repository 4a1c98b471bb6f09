package service

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// OrderNumberGenerator issues HF<unix millis><4 digit sequence>. The sequence
// starts at a random offset so that replicas rarely collide; the unique index
// on order_number catches the rest.
type OrderNumberGenerator struct {
	seq atomic.Uint32
	now func() time.Time
}

func NewOrderNumberGenerator() *OrderNumberGenerator {
	g := &OrderNumberGenerator{now: time.Now}
	g.seq.Store(uint32(rand.Int31n(10000)))
	return g
}

func (g *OrderNumberGenerator) Next() string {
	n := g.seq.Add(1) % 10000
	return fmt.Sprintf("HF%d%04d", g.now().UnixMilli(), n)
}

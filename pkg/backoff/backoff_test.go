package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixed_Bounded(t *testing.T) {
	f := NewFixed(3 * time.Second)
	for i := 0; i < 100; i++ {
		d := f.Next()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 3*time.Second)
	}
}

func TestExponential_KthValueBounded(t *testing.T) {
	e := NewExponential(30)

	for k := 1; k <= 40; k++ {
		step := k
		if step > 30 {
			step = 30
		}
		d := e.Next()
		assert.GreaterOrEqual(t, d, time.Duration(0.5*float64(step)*float64(time.Second)))
		assert.Less(t, d, time.Duration(step)*time.Second)
	}
	assert.Equal(t, 30, e.b)
}

func TestExponential_ResetReturnsToInitial(t *testing.T) {
	e := NewExponential(30)
	for i := 0; i < 10; i++ {
		e.Next()
	}
	assert.Greater(t, e.b, 1)

	e.Reset()
	assert.Equal(t, 1, e.b)
}

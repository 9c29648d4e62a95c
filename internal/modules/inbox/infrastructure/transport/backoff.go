package transport

import "time"

// Backoff yields exponentially growing reconnect delays capped at Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	next time.Duration
}

func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Initial
	}
	d := b.next
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}

	grown := time.Duration(float64(b.next) * b.Multiplier)
	if b.Max > 0 && grown > b.Max {
		grown = b.Max
	}
	if grown > b.next {
		b.next = grown
	}
	return d
}

// Reset starts the sequence over from Initial.
func (b *Backoff) Reset() {
	b.next = 0
}

package queue

// ConsumerEnd is the half of a Pair held by the consumer: it writes outbound values and reads
// inbound ones.
type ConsumerEnd[T any] struct {
	Out *Sender[T]
	In  *Receiver[T]
}

// DriverEnd is the half of a Pair held by the driver: it reads outbound values and writes
// inbound ones.
type DriverEnd[T any] struct {
	Out *Receiver[T]
	In  *Sender[T]
}

// NewPair creates the two independent queues of a duplex connection.
//
// Each side only writes one queue and reads the other. There is no ordering between the two
// directions.
func NewPair[T any]() (ConsumerEnd[T], DriverEnd[T]) {
	outTx, outRx := New[T]()
	inTx, inRx := New[T]()
	return ConsumerEnd[T]{Out: outTx, In: inRx}, DriverEnd[T]{Out: outRx, In: inTx}
}

// Close drops both consumer ends.
func (c ConsumerEnd[T]) Close() {
	c.Out.Close()
	c.In.Close()
}

// Close drops both driver ends.
func (d DriverEnd[T]) Close() {
	d.In.Close()
	d.Out.Close()
}

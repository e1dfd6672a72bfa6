package store

import (
	"context"
	"log"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

// The change-notification bus. sqlite has no server-side notification
// channel, so committed mutations are announced over a zmq PUB socket as
// msgpack-encoded ChangeEvents. Subscribers (this process's bridge, and
// any hardware-side writer sharing the bus address) pick them up with SUB
// sockets. Events are a hint, not a log: a lost frame only costs one
// broadcast, the rows themselves live in the database.

var msgpack codec.MsgpackHandle

// Notifier is the publishing half of the bus. Safe for concurrent use;
// zmq sockets are not, so sends are serialized.
type Notifier struct {
	mu  sync.Mutex
	soc *zmq4.Socket
}

func NewNotifier(endpoint string) (*Notifier, error) {
	soc, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, errors.Wrap(err, "create notification socket")
	}
	if err := soc.Bind(endpoint); err != nil {
		soc.Close()
		return nil, errors.Wrapf(err, "bind notification socket to %s", endpoint)
	}
	return &Notifier{soc: soc}, nil
}

// Publish announces one change event. Failures are logged and swallowed:
// a missed notification must never fail the mutation that caused it.
func (n *Notifier) Publish(ev ChangeEvent) {
	var data []byte
	enc := codec.NewEncoderBytes(&data, &msgpack)
	if err := enc.Encode(ev); err != nil {
		log.Println("[ERR] could not encode change event:", err)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.soc.SendBytes(data, zmq4.DONTWAIT); err != nil {
		log.Println("[WARN] could not publish change event:", err)
	}
}

func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.soc.Close()
}

// Subscribe connects to the bus and forwards decoded change events into
// sink until ctx is cancelled. Undecodable frames are dropped with a
// warning; the subscription itself stays up.
func Subscribe(ctx context.Context, endpoint string, sink chan<- ChangeEvent) error {
	soc, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return errors.Wrap(err, "create subscription socket")
	}
	defer soc.Close()
	if err := soc.SetSubscribe(""); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	if err := soc.Connect(endpoint); err != nil {
		return errors.Wrapf(err, "connect subscription socket to %s", endpoint)
	}
	// poll with a timeout so cancellation is observed
	if err := soc.SetRcvtimeo(500 * time.Millisecond); err != nil {
		return errors.Wrap(err, "set receive timeout")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		data, err := soc.RecvBytes(0)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) { // receive timeout
				continue
			}
			return errors.Wrap(err, "receive change event")
		}
		var ev ChangeEvent
		dec := codec.NewDecoderBytes(data, &msgpack)
		if err := dec.Decode(&ev); err != nil {
			log.Println("[WARN] dropping undecodable change event:", err)
			continue
		}
		select {
		case sink <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
